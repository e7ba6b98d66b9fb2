// Package install provisions the synthesis model package and its tensor runtime.
package install

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/config"
)

var (
	// ErrNoPackages is returned when there is nothing to install.
	ErrNoPackages = errors.New("no packages configured for install")
	// ErrInstallFailed is returned when the package installer exits non-zero.
	ErrInstallFailed = errors.New("package install failed")
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command as a subprocess.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- installer and packages come from operator configuration
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w", name, err)
	}

	return output, nil
}

// Installer runs the configured package installer.
type Installer struct {
	cfg config.InstallConfig
	run Runner
	log *logger.Logger
}

// New creates an installer. A nil runner uses ExecRunner.
func New(cfg config.InstallConfig, run Runner, log *logger.Logger) *Installer {
	if run == nil {
		run = ExecRunner
	}

	return &Installer{cfg: cfg, run: run, log: log}
}

// Args returns the argument list passed to the installer.
func (i *Installer) Args() []string {
	return append([]string{"install"}, i.cfg.Packages...)
}

// Install runs `{pip} install {packages...}` and returns the installer output.
func (i *Installer) Install(ctx context.Context) (string, error) {
	if len(i.cfg.Packages) == 0 {
		return "", ErrNoPackages
	}

	args := i.Args()
	i.log.Info("Installing packages: %s %s", i.cfg.Pip, strings.Join(args, " "))

	output, err := i.run(ctx, i.cfg.Pip, args...)
	if err != nil {
		i.log.Error("Package install failed: %v", err)

		return string(output), fmt.Errorf("%w: %w - output: %s", ErrInstallFailed, err, strings.TrimSpace(string(output)))
	}

	i.log.Info("Installed %d package(s)", len(i.cfg.Packages))

	return string(output), nil
}
