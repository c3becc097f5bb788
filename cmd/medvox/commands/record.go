package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/medvox/medvox/pkg/capture"
	"github.com/medvox/medvox/pkg/render"
	"github.com/medvox/medvox/pkg/session"
	"github.com/medvox/medvox/pkg/vad"
)

var (
	recordDevice string
	recordKeep   bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a dictation session",
	Long: `Records from the configured capture device until Enter is pressed,
then renders a speech-only file next to the session recording.
Interrupting with Ctrl-C discards the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		recorder, err := capture.New(capture.Options{
			FFmpegPath: cfg.FFmpeg,
			Dir:        cfg.Recordings(),
		})
		if err != nil {
			return err
		}

		model, err := vad.NewSilero(cfg.Models.Silero)
		if err != nil {
			return err
		}
		defer model.Close()

		ctrl := session.NewController(session.Options{
			Recorder: recorder,
			Model:    model,
			Renderer: &render.Renderer{FFmpegPath: cfg.FFmpeg},
		})

		device := cfg.Device
		if recordDevice != "" {
			device = recordDevice
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		path, err := ctrl.Start(ctx, capture.StartOptions{
			DeviceHint: device,
			DeleteOld:  !recordKeep && !cfg.KeepRecordings,
		})
		if err != nil {
			if errors.Is(err, capture.ErrDeviceNotFound) {
				return fmt.Errorf("no capture device found; check 'medvox devices' and the configured device name")
			}
			return err
		}
		fmt.Printf("Recording to %s\nPress Enter to stop, Ctrl-C to discard.\n", path)

		enter := make(chan struct{})
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()

		select {
		case <-enter:
		case <-ctx.Done():
			fmt.Println("\nDiscarding session.")
			return ctrl.Cancel(context.Background())
		}

		result, err := ctrl.Stop(context.Background())
		if err != nil {
			if errors.Is(err, session.ErrNoSpeech) {
				return fmt.Errorf("no speech detected; speak for at least 2-3 seconds")
			}
			if errors.Is(err, capture.ErrEmptyRecording) {
				return fmt.Errorf("the recording is empty; speak for at least 2-3 seconds")
			}
			return err
		}

		fmt.Printf("Recording: %s (%v)\n", result.OriginalPath, result.Duration)
		fmt.Printf("Speech:    %s (%v in %d segments)\n",
			result.SpeechPath, result.Map.Duration(), len(result.Markers))
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordDevice, "device", "d", "", "capture device name (overrides config)")
	recordCmd.Flags().BoolVar(&recordKeep, "keep", false, "keep previous session recordings")
	rootCmd.AddCommand(recordCmd)
}
