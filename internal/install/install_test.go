package install_test

import (
	"context"
	"errors"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/config"
	"github.com/book-expert/voice-narrator/internal/install"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExit = errors.New("exit status 1")

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "install-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestInstall_RunsPip(t *testing.T) {
	t.Parallel()

	var (
		gotName string
		gotArgs []string
	)

	runner := func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args

		return []byte("Successfully installed chatterbox-tts"), nil
	}

	installer := install.New(config.Default().Install, runner, newTestLogger(t))

	output, err := installer.Install(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "pip", gotName)
	assert.Equal(t, []string{"install", "chatterbox-tts", "torch", "torchaudio"}, gotArgs)
	assert.Contains(t, output, "Successfully installed")
}

func TestInstall_Failure(t *testing.T) {
	t.Parallel()

	runner := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("ERROR: No matching distribution found for torch"), errExit
	}

	installer := install.New(config.Default().Install, runner, newTestLogger(t))

	_, err := installer.Install(context.Background())
	require.ErrorIs(t, err, install.ErrInstallFailed)
	require.ErrorIs(t, err, errExit)
	assert.Contains(t, err.Error(), "No matching distribution")
}

func TestInstall_NoPackages(t *testing.T) {
	t.Parallel()

	installer := install.New(config.InstallConfig{Pip: "pip"}, nil, newTestLogger(t))

	_, err := installer.Install(context.Background())
	require.ErrorIs(t, err, install.ErrNoPackages)
}
