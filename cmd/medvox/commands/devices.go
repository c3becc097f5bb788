package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medvox/medvox/pkg/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		enum := &capture.Enumerator{FFmpegPath: cfg.FFmpeg}
		devices, err := enum.ListDevices(cmd.Context())
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No audio capture devices found.")
			return nil
		}
		for _, d := range devices {
			marker := " "
			if d.Name == cfg.Device {
				marker = "*"
			}
			fmt.Printf("%s %-40s [%s]\n", marker, d.Name, d.Backend)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
