package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage voice profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled voice profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		store, closeStore, err := openProfiles(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		profiles, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("No voice profiles enrolled.")
			return nil
		}
		for _, p := range profiles {
			name := p.Name
			if p.Role != "" {
				name = p.Role + " - " + p.Name
			}
			fmt.Printf("%s  %-30s confirmed=%d pending=%d updated=%s\n",
				p.ID, name, len(p.Confirmed), len(p.Pending),
				p.UpdatedAt.Format(time.DateOnly))
		}
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a voice profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		store, closeStore, err := openProfiles(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted profile %s\n", args[0])
		return nil
	},
}

var profilesRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a voice profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		store, closeStore, err := openProfiles(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.Rename(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed profile %s to %q\n", args[0], args[1])
		return nil
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd, profilesDeleteCmd, profilesRenameCmd)
	rootCmd.AddCommand(profilesCmd)
}
