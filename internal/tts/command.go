package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/core"
)

// ErrCommandMissing is returned when the model CLI cannot be found on PATH.
var ErrCommandMissing = errors.New("synthesis command not found")

// CommandSynthesizer implements core.Synthesizer by running the model CLI once
// per call and reading the WAV it exports.
type CommandSynthesizer struct {
	command string
	timeout time.Duration
	log     *logger.Logger
}

// NewCommandSynthesizer creates a synthesizer that runs command. A zero
// timeout leaves calls bounded only by the caller's context.
func NewCommandSynthesizer(command string, timeout time.Duration, log *logger.Logger) *CommandSynthesizer {
	return &CommandSynthesizer{
		command: command,
		timeout: timeout,
		log:     log,
	}
}

// Synthesize implements core.Synthesizer.
//
// The model writes its output to a temporary WAV file that is read back and
// removed afterwards. The process is killed when ctx is cancelled or the
// configured timeout elapses. A non-zero exit is reported with the combined
// output of the command, and an empty output file yields ErrEmptyAudio. All
// failures are wrapped in core.ErrSynthesis.
func (c *CommandSynthesizer) Synthesize(ctx context.Context, text string, voice core.VoiceConfig) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, ErrTextEmpty)
	}

	tempFile, err := os.CreateTemp("", "narrator-output-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp file for tts output: %w", core.ErrSynthesis, err)
	}

	tempName := tempFile.Name()
	_ = tempFile.Close()

	defer func() {
		removeErr := os.Remove(tempName)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			c.log.Warn("Failed to remove temp file '%s': %v", tempName, removeErr)
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// #nosec G204 -- the command comes from operator configuration
	cmd := exec.CommandContext(ctx, c.command, CommandArgs(text, tempName, voice)...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s execution failed: %w - output: %s",
			core.ErrSynthesis, c.command, err, strings.TrimSpace(string(output)))
	}

	audioData, err := os.ReadFile(tempName)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio data from temp file: %w", core.ErrSynthesis, err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, ErrEmptyAudio)
	}

	return audioData, nil
}

// HealthCheck reports whether the command is resolvable on PATH. It does not
// start the model, so a positive result does not prove the model loads.
func (c *CommandSynthesizer) HealthCheck(_ context.Context) error {
	_, err := exec.LookPath(c.command)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCommandMissing, c.command, err)
	}

	return nil
}

// CommandArgs builds the argument list passed to the model CLI:
//
//	--text T --output OUT --exaggeration E --cfg-weight C --device D
//	[--audio-prompt P] [--temperature X]
//
// The optional flags are only present when the voice sets them.
func CommandArgs(text, outputPath string, voice core.VoiceConfig) []string {
	args := []string{
		"--text", text,
		"--output", outputPath,
		"--exaggeration", formatFloat(voice.Exaggeration),
		"--cfg-weight", formatFloat(voice.CFGWeight),
		"--device", voice.Device,
	}

	if voice.AudioPromptPath != "" {
		args = append(args, "--audio-prompt", voice.AudioPromptPath)
	}

	if voice.Temperature > 0 {
		args = append(args, "--temperature", formatFloat(voice.Temperature))
	}

	return args
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
