// Command narrator synthesizes narration audio from text through an external
// text-to-speech model.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/config"
	"github.com/book-expert/voice-narrator/internal/install"
	"github.com/book-expert/voice-narrator/internal/narrator"
	"github.com/book-expert/voice-narrator/internal/tts"
	"github.com/charmbracelet/log"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const (
	bootstrapLogFile = "narrator-bootstrap.log"
	logFile          = "narrator.log"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	console *log.Logger

	configPath string
	verbose    bool

	cfg *config.Config
	log *logger.Logger

	newBackend func(config.TTSConfig, *logger.Logger) (tts.Backend, error)
	runner     install.Runner
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		console: log.NewWithOptions(stderr, log.Options{
			Prefix: "narrator",
		}),
		newBackend: tts.New,
		runner:     install.ExecRunner,
	}
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	fileLog, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in '%s': %w", logPath, err)
	}

	return fileLog, nil
}

// setup loads the configuration with a bootstrap logger, then opens the
// final logger in the configured logs directory.
func (a *app) setup() error {
	if a.verbose {
		a.console.SetLevel(log.DebugLevel)
	}

	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(a.configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return err
	}

	a.cfg = cfg
	a.log = finalLog
	a.console.Debug("configuration loaded", "backend", cfg.TTS.Backend, "logs", cfg.Paths.BaseLogsDir)

	return nil
}

func (a *app) close() {
	if a.log == nil {
		return
	}

	err := a.log.Close()
	if err != nil {
		_, _ = fmt.Fprintf(a.stderr, "error closing logger: %v\n", err)
	}
}

// execute runs the command line and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	defer a.close()

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	executed, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return exitOK
	}

	if errors.Is(err, narrator.ErrUsage) {
		a.console.Error(err.Error())
		if executed != nil {
			_, _ = fmt.Fprintln(a.stderr)
			_, _ = fmt.Fprint(a.stderr, executed.UsageString())
		}

		return exitUsage
	}

	if a.log != nil {
		a.log.Error("Command failed: %v", err)
	}

	a.console.Error(err.Error())

	return exitError
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := newApp(os.Stdout, os.Stderr).execute(ctx, os.Args[1:])

	stop()
	os.Exit(code)
}
