// Package config provides the configuration system for the medvox CLI.
//
// Configuration is stored under os.UserConfigDir()/medvox/:
//
//	~/Library/Application Support/medvox/   (macOS)
//	~/.config/medvox/                       (Linux)
//	%AppData%/medvox/                       (Windows)
//
// Layout:
//
//	medvox/
//	├── config.yaml     # capture, model and storage settings
//	├── recordings/     # session recordings (unless redirected)
//	└── profiles/       # voice profile database
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// appDir is the directory name under os.UserConfigDir().
const appDir = "medvox"

// Config holds all CLI settings.
type Config struct {
	// Device is the preferred capture device name. Empty selects the
	// first enumerated device.
	Device string `yaml:"device"`

	// FFmpeg is the encoder binary path.
	FFmpeg string `yaml:"ffmpeg"`

	// KeepRecordings skips purging previous session files on start.
	KeepRecordings bool `yaml:"keep_recordings"`

	// RecordingsDir overrides where session files are written.
	RecordingsDir string `yaml:"recordings_dir"`

	// ProfilesDir overrides where the voice profile database lives.
	ProfilesDir string `yaml:"profiles_dir"`

	// Models locates the ONNX model files.
	Models ModelPaths `yaml:"models"`

	// dir is the root configuration directory the config was loaded from.
	dir string
}

// ModelPaths locates the inference models.
type ModelPaths struct {
	// Silero is the voice activity model.
	Silero string `yaml:"silero"`

	// Speaker is the speaker embedding model.
	Speaker string `yaml:"speaker"`
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		FFmpeg: "ffmpeg",
		Models: ModelPaths{
			Silero:  filepath.Join(dir, "models", "silero_vad.onnx"),
			Speaker: filepath.Join(dir, "models", "eres2net.onnx"),
		},
		dir: dir,
	}
}

// Load reads the configuration from the default location. A missing
// config file yields the defaults, not an error.
func Load() (*Config, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine config directory: %w", err)
	}
	return LoadFrom(filepath.Join(base, appDir))
}

// LoadFrom reads the configuration rooted at dir.
func LoadFrom(dir string) (*Config, error) {
	cfg := Default(dir)

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config.yaml: %w", err)
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	cfg.dir = dir
	return cfg, nil
}

// Save writes the configuration back to its root directory.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, "config.yaml"), data, 0o644)
}

// Recordings returns the effective session recordings directory.
func (c *Config) Recordings() string {
	if c.RecordingsDir != "" {
		return c.RecordingsDir
	}
	return filepath.Join(c.dir, "recordings")
}

// Profiles returns the effective voice profile database directory.
func (c *Config) Profiles() string {
	if c.ProfilesDir != "" {
		return c.ProfilesDir
	}
	return filepath.Join(c.dir, "profiles")
}
