package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medvox/medvox/pkg/profile"
	"github.com/medvox/medvox/pkg/voiceprint"
)

// minOptimizeUtterance is the shortest utterance worth harvesting; very
// short snippets produce unstable embeddings.
const minOptimizeUtterance = 2 * time.Second

// optimizeProfiles feeds identified session audio back into the matched
// profiles as pending samples. Each utterance is embedded and matched on
// its own, so a mislabeled snippet cannot attach to the wrong profile.
// A speaker no utterance matches gets a provisional profile that collects
// the session's samples under its anonymous label.
func optimizeProfiles(cmd *cobra.Command, audioPath string, utterances []voiceprint.Utterance, engine *voiceprint.Engine, store *profile.Store) error {
	added, created := 0, 0
	provisional := make(map[string]string) // session label -> profile ID
	for _, u := range utterances {
		d := u.End - u.Start
		if d < minOptimizeUtterance {
			continue
		}
		vec, err := engine.Embed(audioPath, u.Start, d)
		if err != nil {
			continue
		}
		match, ok, err := store.Best(vec)
		if err != nil {
			return err
		}
		id := match.ProfileID
		if !ok {
			id = provisional[u.Speaker]
			if id == "" {
				p, err := store.CreateProvisional(cmd.Context(), fmt.Sprintf("Sprecher %s", u.Speaker))
				if err != nil {
					return err
				}
				provisional[u.Speaker] = p.ID
				id = p.ID
				created++
			}
		}
		if err := store.AddPending(cmd.Context(), id, vec, d); err != nil {
			return err
		}
		added++
	}
	if added > 0 {
		fmt.Printf("Added %d samples to voice profiles.\n", added)
	}
	if created > 0 {
		fmt.Printf("Created %d provisional profiles.\n", created)
	}
	return nil
}
