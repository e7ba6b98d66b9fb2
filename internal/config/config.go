// Package config provides the configuration structure for the voice narrator.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/core"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is the config file looked up in the working directory
// when no explicit path is given.
const DefaultFileName = "narrator.toml"

// Synthesis backends.
const (
	BackendHTTP    = "http"
	BackendCommand = "command"
)

// Default values.
const (
	defaultServiceURL     = "http://127.0.0.1:8000"
	defaultCommand        = "chatterbox-tts"
	defaultTimeoutSeconds = 300
	defaultLanguage       = "en"
	defaultOutputDir      = "voice_output"
	defaultOutputFile     = "output.wav"
	defaultStyle          = "neutral"
	defaultSegmentLength  = 250
	defaultPauseSeconds   = 0.5
	defaultPip            = "pip"
	defaultNATSURL        = "nats://127.0.0.1:4222"
	defaultSubject        = "narration.requested"
	defaultTextBucket     = "TEXT_FILES"
	defaultAudioBucket    = "AUDIO_FILES"
)

var (
	// ErrUnknownBackend indicates that tts.backend is not one of the supported backends.
	ErrUnknownBackend = errors.New("unknown tts backend")
	// ErrSegmentLength indicates a non-positive segment length.
	ErrSegmentLength = errors.New("segment_length must be positive")
	// ErrPauseNegative indicates a negative pause between segments.
	ErrPauseNegative = errors.New("pause_seconds must be non-negative")
	// ErrEmptyPattern indicates an empty voice pattern.
	ErrEmptyPattern = errors.New("voice_pattern cannot be empty")
	// ErrTimeout indicates a non-positive backend timeout.
	ErrTimeout = errors.New("timeout_seconds must be positive")
)

// TTSConfig selects and configures the synthesis backend.
type TTSConfig struct {
	Backend        string `toml:"backend"         env:"NARRATOR_TTS_BACKEND"`
	ServiceURL     string `toml:"service_url"     env:"NARRATOR_TTS_SERVICE_URL"`
	Command        string `toml:"command"         env:"NARRATOR_TTS_COMMAND"`
	Language       string `toml:"language"        env:"NARRATOR_TTS_LANGUAGE"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"NARRATOR_TTS_TIMEOUT_SECONDS"`
}

// NarratorConfig holds defaults for the synthesis pipeline.
type NarratorConfig struct {
	Device        string   `toml:"device"         env:"NARRATOR_DEVICE"`
	VoiceStyle    string   `toml:"voice_style"    env:"NARRATOR_VOICE_STYLE"`
	OutputFile    string   `toml:"output_file"    env:"NARRATOR_OUTPUT_FILE"`
	OutputDir     string   `toml:"output_dir"     env:"NARRATOR_OUTPUT_DIR"`
	VoicePattern  []string `toml:"voice_pattern"  env:"NARRATOR_VOICE_PATTERN"`
	SegmentLength int      `toml:"segment_length" env:"NARRATOR_SEGMENT_LENGTH"`
	PauseSeconds  float64  `toml:"pause_seconds"  env:"NARRATOR_PAUSE_SECONDS"`
	KeepSegments  bool     `toml:"keep_segments"  env:"NARRATOR_KEEP_SEGMENTS"`
	NormalizeText bool     `toml:"normalize_text" env:"NARRATOR_NORMALIZE_TEXT"`
}

// InstallConfig describes how the model package is provisioned.
type InstallConfig struct {
	Pip      string   `toml:"pip"      env:"NARRATOR_PIP"`
	Packages []string `toml:"packages" env:"NARRATOR_PIP_PACKAGES"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"                       env:"NARRATOR_NATS_URL"`
	NarrationSubject       string `toml:"narration_subject"         env:"NARRATOR_NATS_SUBJECT"`
	TextObjectStoreBucket  string `toml:"text_object_store_bucket"  env:"NARRATOR_NATS_TEXT_BUCKET"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket" env:"NARRATOR_NATS_AUDIO_BUCKET"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" env:"NARRATOR_LOGS_DIR"`
}

// Config is the root configuration structure.
type Config struct {
	TTS      TTSConfig      `toml:"tts"`
	Narrator NarratorConfig `toml:"narrator"`
	Install  InstallConfig  `toml:"install"`
	NATS     NATSConfig     `toml:"nats"`
	Paths    PathsConfig    `toml:"paths"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TTS: TTSConfig{
			Backend:        BackendHTTP,
			ServiceURL:     defaultServiceURL,
			Command:        defaultCommand,
			Language:       defaultLanguage,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Narrator: NarratorConfig{
			Device:        core.DeviceCUDA,
			VoiceStyle:    defaultStyle,
			OutputFile:    defaultOutputFile,
			OutputDir:     defaultOutputDir,
			VoicePattern:  []string{"neutral", "calm", "neutral"},
			SegmentLength: defaultSegmentLength,
			PauseSeconds:  defaultPauseSeconds,
			KeepSegments:  true,
			NormalizeText: true,
		},
		Install: InstallConfig{
			Pip:      defaultPip,
			Packages: []string{"chatterbox-tts", "torch", "torchaudio"},
		},
		NATS: NATSConfig{
			URL:                    defaultNATSURL,
			NarrationSubject:       defaultSubject,
			TextObjectStoreBucket:  defaultTextBucket,
			AudioObjectStoreBucket: defaultAudioBucket,
		},
		Paths: PathsConfig{
			BaseLogsDir: os.TempDir(),
		},
	}
}

// Load builds the configuration from defaults, a TOML file and the environment.
//
// When path is empty, ./narrator.toml is used if present; otherwise the central
// configurator is consulted and its failure leaves the defaults in place.
func Load(path string, log *logger.Logger) (*Config, error) {
	cfg := Default()

	switch {
	case path != "":
		err := loadFile(path, cfg)
		if err != nil {
			return nil, err
		}
	case fileExists(DefaultFileName):
		err := loadFile(DefaultFileName, cfg)
		if err != nil {
			return nil, err
		}
	default:
		err := configurator.Load(cfg, log)
		if err != nil {
			log.Warn("Central configuration unavailable, using defaults: %v", err)
		}
	}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse environment: %w", core.ErrConfig, err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	switch c.TTS.Backend {
	case BackendHTTP, BackendCommand:
	default:
		return fmt.Errorf("%w: %w: %q", core.ErrConfig, ErrUnknownBackend, c.TTS.Backend)
	}

	if c.TTS.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: %w: got %d", core.ErrConfig, ErrTimeout, c.TTS.TimeoutSeconds)
	}

	if c.Narrator.SegmentLength <= 0 {
		return fmt.Errorf("%w: %w: got %d", core.ErrConfig, ErrSegmentLength, c.Narrator.SegmentLength)
	}

	if c.Narrator.PauseSeconds < 0 {
		return fmt.Errorf("%w: %w: got %f", core.ErrConfig, ErrPauseNegative, c.Narrator.PauseSeconds)
	}

	if len(c.Narrator.VoicePattern) == 0 {
		return fmt.Errorf("%w: %w", core.ErrConfig, ErrEmptyPattern)
	}

	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read config file '%s': %w", core.ErrConfig, path, err)
	}

	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("%w: failed to parse config file '%s': %w", core.ErrConfig, path, err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}
