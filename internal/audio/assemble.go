package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSegments is returned when there is nothing to assemble.
	ErrNoSegments = errors.New("no audio segments to assemble")
	// ErrFormatMismatch is returned when segments do not share one PCM format.
	ErrFormatMismatch = errors.New("audio segments have different formats")
)

// Assembler joins ordered WAV segments with a fixed pause between them.
type Assembler struct {
	pauseSeconds float64
}

// NewAssembler creates an assembler that inserts pauseSeconds of silence
// between consecutive segments.
func NewAssembler(pauseSeconds float64) *Assembler {
	if pauseSeconds < 0 {
		pauseSeconds = 0
	}

	return &Assembler{pauseSeconds: pauseSeconds}
}

// Assemble decodes each payload and concatenates them in the given order.
// Payloads may be integer PCM, IEEE float or WAVE_FORMAT_EXTENSIBLE; see
// Decode and Concat for how they are normalised.
func (a *Assembler) Assemble(payloads [][]byte) (*Buffer, error) {
	buffers := make([]*Buffer, 0, len(payloads))

	for index, payload := range payloads {
		buffer, err := Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", index+1, err)
		}

		buffers = append(buffers, buffer)
	}

	return a.Concat(buffers)
}

// Concat joins decoded buffers in order. Silence goes between segments, never
// after the last one.
//
// Every buffer is converted to 16-bit first, so segments may differ in bit
// depth. Sample rate and channel count must match across all segments or
// ErrFormatMismatch is returned. The result is always 16-bit PCM.
func (a *Assembler) Concat(buffers []*Buffer) (*Buffer, error) {
	if len(buffers) == 0 {
		return nil, ErrNoSegments
	}

	normalized := make([]*Buffer, 0, len(buffers))
	for _, buffer := range buffers {
		normalized = append(normalized, buffer.PCM16())
	}

	buffers = normalized
	format := buffers[0].Format
	pause := Silence(format, a.pauseSeconds)

	total := 0
	for index, buffer := range buffers {
		if buffer.Format != format {
			return nil, fmt.Errorf("%w: segment %d is %s, segment 1 is %s",
				ErrFormatMismatch, index+1, buffer.Format, format)
		}

		total += len(buffer.Samples)
	}

	total += len(pause.Samples) * (len(buffers) - 1)

	samples := make([]int, 0, total)
	for index, buffer := range buffers {
		if index > 0 {
			samples = append(samples, pause.Samples...)
		}

		samples = append(samples, buffer.Samples...)
	}

	return &Buffer{Format: format, Samples: samples}, nil
}
