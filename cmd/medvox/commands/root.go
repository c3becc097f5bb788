package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/medvox/medvox/cmd/medvox/internal/config"
)

var (
	// Global flags
	verbose   bool
	configDir string

	// Global configuration (loaded at init time)
	globalConfig  *config.Config
	configLoadErr error
)

var rootCmd = &cobra.Command{
	Use:   "medvox",
	Short: "Medical dictation capture and speaker identification",
	Long: `medvox - continuous dictation capture with speaker identification.

A session records from a capture device, detects speech while recording,
and renders a speech-only file when stopped. Enrolled speakers are
recognized by voice and labeled by role and name; everyone else stays
anonymous ("Sprecher A", "Sprecher B", ...). Patients are never enrolled.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/medvox/
  Linux:   ~/.config/medvox/
  Windows: %AppData%/medvox/

Examples:
  # List capture devices
  medvox devices

  # Record a session (stop with Enter)
  medvox record

  # Enroll a speaker from a 30+ second sample
  medvox enroll --name "Dr. Weber" --role Arzt sample.wav

  # Identify speakers in a rendered session
  medvox identify --utterances transcript.json speech.wav`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "override the configuration directory")
}

func initConfig() {
	var (
		cfg *config.Config
		err error
	)
	if configDir != "" {
		cfg, err = config.LoadFrom(configDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

func initLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// getConfig returns the loaded configuration or the deferred load error.
func getConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("load configuration: %w", configLoadErr)
		}
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}
