package tts

import (
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/config"
	"github.com/book-expert/voice-narrator/internal/core"
)

// Backend is a synthesizer that can also report readiness.
type Backend interface {
	core.Synthesizer
	core.HealthChecker
}

// New returns the backend selected by cfg.Backend: BackendHTTP builds an
// HTTPClient for cfg.ServiceURL and BackendCommand a CommandSynthesizer for
// cfg.Command. Both use cfg.TimeoutSeconds as the per-call limit. Any other
// value fails with config.ErrUnknownBackend wrapped in core.ErrConfig.
func New(cfg config.TTSConfig, log *logger.Logger) (Backend, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.Backend {
	case config.BackendHTTP:
		log.Info("Using HTTP synthesis backend at %s", cfg.ServiceURL)

		return NewHTTPClient(cfg.ServiceURL, timeout, cfg.Language), nil
	case config.BackendCommand:
		log.Info("Using command synthesis backend '%s'", cfg.Command)

		return NewCommandSynthesizer(cfg.Command, timeout, log), nil
	default:
		return nil, fmt.Errorf("%w: %w: %q", core.ErrConfig, config.ErrUnknownBackend, cfg.Backend)
	}
}
