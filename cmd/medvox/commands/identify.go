package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/medvox/medvox/pkg/voiceprint"
)

var (
	identifyUtterances string
	identifyOptimize   bool
)

// utteranceJSON is the wire shape delivered by the transcription backend:
// positions in milliseconds on the speech-only timeline.
type utteranceJSON struct {
	Speaker string `json:"speaker"`
	StartMs int64  `json:"start"`
	EndMs   int64  `json:"end"`
	Text    string `json:"text"`
}

var identifyCmd = &cobra.Command{
	Use:   "identify <speech.wav>",
	Short: "Identify speakers in a rendered session",
	Long: `Resolves the raw speaker labels of a diarized transcript against the
enrolled voice profiles. The transcript is a JSON array of utterances
{speaker, start, end, text} on the speech-only timeline, in milliseconds.

With --optimize, audio of identified speakers is fed back into their
profiles as provisional samples; samples are promoted once enough
consistent audio has accumulated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if identifyUtterances == "" {
			return fmt.Errorf("--utterances is required")
		}

		utterances, err := readUtterances(identifyUtterances)
		if err != nil {
			return err
		}

		model, closeModel, err := openEmbeddingModel(cfg)
		if err != nil {
			return err
		}
		defer closeModel()

		store, closeStore, err := openProfiles(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		engine := voiceprint.NewEngine(model, nil)
		mapping, err := engine.Identify(args[0], utterances, store)
		if err != nil {
			return err
		}

		labels := make([]string, 0, len(mapping))
		for label := range mapping {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Printf("%-4s %s\n", label, mapping[label])
		}

		if identifyOptimize {
			return optimizeProfiles(cmd, args[0], utterances, engine, store)
		}
		return nil
	},
}

func readUtterances(path string) ([]voiceprint.Utterance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []utteranceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse utterances: %w", err)
	}
	out := make([]voiceprint.Utterance, len(raw))
	for i, u := range raw {
		out[i] = voiceprint.Utterance{
			Speaker: u.Speaker,
			Start:   time.Duration(u.StartMs) * time.Millisecond,
			End:     time.Duration(u.EndMs) * time.Millisecond,
			Text:    u.Text,
		}
	}
	return out, nil
}

func init() {
	identifyCmd.Flags().StringVarP(&identifyUtterances, "utterances", "u", "", "diarized transcript JSON (required)")
	identifyCmd.Flags().BoolVar(&identifyOptimize, "optimize", false, "feed identified audio back into profiles")
	rootCmd.AddCommand(identifyCmd)
}
