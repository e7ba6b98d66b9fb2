// Package core defines the shared types and capabilities of the narrator.
package core

import (
	"context"
	"errors"
)

var (
	// ErrConfig classifies configuration errors (unknown style, bad device, bad config file).
	ErrConfig = errors.New("configuration error")
	// ErrSynthesis classifies failures of the external synthesis model.
	ErrSynthesis = errors.New("synthesis failed")
)

// Device names accepted by the synthesis model.
const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// VoiceConfig holds the resolved voice parameters for a single synthesis call.
// Its values are passed to the model as-is.
type VoiceConfig struct {
	Style           string
	Exaggeration    float64
	CFGWeight       float64
	Temperature     float64
	AudioPromptPath string
	Device          string
}

// Synthesizer turns one piece of text into a complete WAV payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error)
}

// SynthesizerFunc adapts a plain function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text string, voice VoiceConfig) ([]byte, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error) {
	return f(ctx, text, voice)
}

// HealthChecker is implemented by backends that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
