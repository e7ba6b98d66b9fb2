// Package voice maps named voice styles to synthesis parameters.
package voice

import (
	"errors"
	"fmt"
	"slices"

	"github.com/book-expert/voice-narrator/internal/core"
)

// Style names.
const (
	Neutral = "neutral"
	Calm    = "calm"
)

// ErrUnknownStyle is returned for a style name that has no preset.
var ErrUnknownStyle = errors.New("unknown voice style")

// Preset is the parameter set the model receives for a style.
type Preset struct {
	Exaggeration float64
	CFGWeight    float64
}

// Presets is the closed table of supported styles. Adding a style is a new entry here.
var Presets = map[string]Preset{
	Neutral: {Exaggeration: 0.5, CFGWeight: 0.5},
	Calm:    {Exaggeration: 0.3, CFGWeight: 0.7},
}

// Overrides replaces individual preset values. Zero fields are ignored.
type Overrides struct {
	Exaggeration float64 `json:"exaggeration,omitempty"`
	CFGWeight    float64 `json:"cfg_weight,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// Styles returns the supported style names in sorted order.
func Styles() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Lookup returns the preset for a style.
func Lookup(style string) (Preset, error) {
	preset, ok := Presets[style]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %w: %q (supported: %v)", core.ErrConfig, ErrUnknownStyle, style, Styles())
	}

	return preset, nil
}

// Map resolves a style, optional reference audio and overrides into a VoiceConfig.
func Map(style, audioPromptPath, device string, overrides Overrides) (core.VoiceConfig, error) {
	preset, err := Lookup(style)
	if err != nil {
		return core.VoiceConfig{}, err
	}

	cfg := core.VoiceConfig{
		Style:           style,
		Exaggeration:    preset.Exaggeration,
		CFGWeight:       preset.CFGWeight,
		Temperature:     overrides.Temperature,
		AudioPromptPath: audioPromptPath,
		Device:          device,
	}

	if overrides.Exaggeration > 0 {
		cfg.Exaggeration = overrides.Exaggeration
	}

	if overrides.CFGWeight > 0 {
		cfg.CFGWeight = overrides.CFGWeight
	}

	return cfg, nil
}

// Pattern assigns styles to chunk positions by cycling through a list.
type Pattern []string

// NewPattern validates every style in the list.
func NewPattern(styles []string) (Pattern, error) {
	if len(styles) == 0 {
		return nil, fmt.Errorf("%w: empty voice pattern", core.ErrConfig)
	}

	for _, style := range styles {
		_, err := Lookup(style)
		if err != nil {
			return nil, err
		}
	}

	return Pattern(slices.Clone(styles)), nil
}

// At returns the style for the chunk at index.
func (p Pattern) At(index int) string {
	return p[index%len(p)]
}
