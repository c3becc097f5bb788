package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medvox/medvox/pkg/profile"
	"github.com/medvox/medvox/pkg/voiceprint"
)

var (
	enrollName string
	enrollRole string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <audio.wav>",
	Short: "Enroll a speaker from a voice sample",
	Long: `Creates a voice profile from a WAV sample (16 kHz mono). The sample
must contain at least 30 seconds of net speech; leading and trailing
silence is trimmed before that is judged. The role "Patient" is reserved
and cannot be enrolled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if enrollName == "" {
			return fmt.Errorf("--name is required")
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
		vector, netDuration, err := engine.EmbedEnrollment(args[0])
		if err != nil {
			return err
		}

		p, err := store.Enroll(cmd.Context(), enrollName, enrollRole, vector, netDuration)
		if err != nil {
			if errors.Is(err, profile.ErrEnrollmentTooShort) {
				return fmt.Errorf("the sample holds only %v of speech; at least %v are required",
					netDuration, profile.MinEnrollment)
			}
			return err
		}

		fmt.Printf("Enrolled %s (%s)\nProfile ID: %s\n", p.Name, displayRole(p.Role), p.ID)
		return nil
	},
}

func displayRole(role string) string {
	if role == "" {
		return "no role"
	}
	return role
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollName, "name", "n", "", "speaker name (required)")
	enrollCmd.Flags().StringVarP(&enrollRole, "role", "r", "", `speaker role, e.g. "Arzt"`)
	rootCmd.AddCommand(enrollCmd)
}
