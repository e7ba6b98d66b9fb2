// Package narrator resolves narration jobs and runs them through the
// segment, synthesize and assemble pipeline.
package narrator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/config"
	"github.com/book-expert/voice-narrator/internal/core"
	"github.com/book-expert/voice-narrator/internal/fileutil"
	"github.com/book-expert/voice-narrator/internal/text"
	"github.com/book-expert/voice-narrator/internal/voice"
)

// Mode selects the pipeline variant.
type Mode string

// Supported modes.
const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
	ModeStory  Mode = "story"
)

var (
	// ErrUsage classifies invocation errors that should print usage text.
	ErrUsage = errors.New("usage error")
	// ErrInvalidDevice is returned for a device other than cuda or cpu.
	ErrInvalidDevice = errors.New("invalid device")
)

// Flags carries the raw per-invocation values. Empty fields take their
// defaults from the narrator configuration.
type Flags struct {
	Text        string
	InputPath   string
	VoiceStyle  string
	VoicePrompt string
	Output      string
	OutputDir   string
	Device      string
	SaveStory   string
	Overrides   voice.Overrides
}

// Job is one fully resolved invocation.
type Job struct {
	Mode        Mode
	Text        string
	InputPath   string
	VoiceStyle  string
	VoicePrompt string
	Output      string
	OutputDir   string
	Device      string
	SaveStory   string
	Overrides   voice.Overrides
}

// Resolve applies defaults to flags and validates them for mode. It performs
// no synthesis and writes nothing.
func Resolve(mode Mode, flags Flags, defaults config.NarratorConfig, log *logger.Logger) (*Job, error) {
	job := &Job{
		Mode:        mode,
		Text:        flags.Text,
		InputPath:   flags.InputPath,
		VoiceStyle:  firstNonEmpty(flags.VoiceStyle, defaults.VoiceStyle, voice.Neutral),
		Output:      firstNonEmpty(flags.Output, defaults.OutputFile, "output.wav"),
		OutputDir:   firstNonEmpty(flags.OutputDir, defaults.OutputDir),
		Device:      strings.ToLower(firstNonEmpty(flags.Device, defaults.Device, core.DeviceCUDA)),
		SaveStory:   flags.SaveStory,
		Overrides:   flags.Overrides,
		VoicePrompt: ResolveVoicePrompt(flags.VoicePrompt, log),
	}

	err := validatePrimary(job)
	if err != nil {
		return nil, err
	}

	err = ValidateDevice(job.Device)
	if err != nil {
		return nil, err
	}

	_, err = voice.Lookup(job.VoiceStyle)
	if err != nil {
		return nil, err
	}

	return job, nil
}

func validatePrimary(job *Job) error {
	switch job.Mode {
	case ModeManual:
		if strings.TrimSpace(job.Text) == "" {
			return MissingArgument(job.Mode)
		}
	case ModeAuto:
		if job.InputPath == "" {
			return MissingArgument(job.Mode)
		}

		if !text.IsSupported(job.InputPath) {
			return fmt.Errorf("%w: %w: %s", ErrUsage, text.ErrUnsupportedFormat, job.InputPath)
		}

		if err := requireExisting(job.InputPath); err != nil {
			return err
		}
	case ModeStory:
		if job.InputPath == "" {
			return MissingArgument(job.Mode)
		}

		if err := requireExisting(job.InputPath); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrUsage, job.Mode)
	}

	return nil
}

// MissingArgument returns the usage error for mode invoked without its
// primary argument: the text for manual mode, the input file for auto mode
// and the story file or directory for story mode.
func MissingArgument(mode Mode) error {
	switch mode {
	case ModeManual:
		return fmt.Errorf("%w: manual mode requires text to synthesize", ErrUsage)
	case ModeAuto:
		return fmt.Errorf("%w: auto mode requires an input file", ErrUsage)
	case ModeStory:
		return fmt.Errorf("%w: story mode requires a story file or directory", ErrUsage)
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrUsage, mode)
	}
}

func requireExisting(path string) error {
	_, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: input not found: %s: %w", ErrUsage, path, err)
	}

	return nil
}

// ValidateDevice checks that device is one the model accepts.
func ValidateDevice(device string) error {
	switch device {
	case core.DeviceCUDA, core.DeviceCPU:
		return nil
	default:
		return fmt.Errorf("%w: %w: %q (supported: %s, %s)",
			core.ErrConfig, ErrInvalidDevice, device, core.DeviceCUDA, core.DeviceCPU)
	}
}

// ResolveVoicePrompt locates a reference clip. A clip that cannot be found
// is dropped with a warning and synthesis proceeds without cloning.
func ResolveVoicePrompt(path string, log *logger.Logger) string {
	if path == "" {
		return ""
	}

	resolved, err := fileutil.FindVoicePrompt(path)
	if err != nil {
		log.Warn("Voice prompt unavailable, continuing without voice cloning: %v", err)

		return ""
	}

	return resolved
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}

	return ""
}
