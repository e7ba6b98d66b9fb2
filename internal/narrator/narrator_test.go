package narrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/audio"
	"github.com/book-expert/voice-narrator/internal/config"
	"github.com/book-expert/voice-narrator/internal/core"
	"github.com/stretchr/testify/require"
)

var (
	errDeviceOOM = errors.New("CUDA out of memory")
	testFormat   = audio.Format{SampleRate: 8000, BitDepth: 16, Channels: 1}
)

type synthCall struct {
	text  string
	voice core.VoiceConfig
}

// stubSynth returns a two-sample WAV whose samples equal the 1-based call
// number. A failAt of n makes the n-th call fail.
type stubSynth struct {
	t      *testing.T
	calls  []synthCall
	failAt int
}

func (s *stubSynth) Synthesize(_ context.Context, text string, voice core.VoiceConfig) ([]byte, error) {
	s.calls = append(s.calls, synthCall{text: text, voice: voice})

	n := len(s.calls)
	if n == s.failAt {
		return nil, errDeviceOOM
	}

	data, err := audio.EncodeBytes(&audio.Buffer{Format: testFormat, Samples: []int{n, n}})
	require.NoError(s.t, err)

	return data, nil
}

func (s *stubSynth) texts() []string {
	texts := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		texts = append(texts, call.text)
	}

	return texts
}

func (s *stubSynth) styles() []string {
	styles := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		styles = append(styles, call.voice.Style)
	}

	return styles
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "narrator-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func testNarratorConfig() config.NarratorConfig {
	cfg := config.Default().Narrator
	cfg.SegmentLength = 20
	cfg.PauseSeconds = 0
	cfg.NormalizeText = false

	return cfg
}

func writeText(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func readSamples(t *testing.T, path string) []int {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	buffer, err := audio.Decode(data)
	require.NoError(t, err)

	return buffer.Samples
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names
}
