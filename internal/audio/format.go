// Package audio decodes synthesized WAV payloads, joins them in order and
// writes the assembled result.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Limits for accepted PCM formats.
const (
	maxSampleRate = 192000
	maxChannels   = 8
)

// Supported bit depths.
const (
	bitDepth8  = 8
	bitDepth16 = 16
	bitDepth24 = 24
	bitDepth32 = 32
	bitDepth64 = 64

	bitsPerByte = 8

	// pcm8Midpoint is the zero level of unsigned 8-bit PCM.
	pcm8Midpoint = 128
)

// Error message formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24, or 32, got %d"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d, got %d"
)

// ErrInvalidFormat is returned when a PCM format is outside the supported range.
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes interleaved integer PCM audio.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// String renders the format for logs and error messages.
func (f Format) String() string {
	return fmt.Sprintf("%d Hz/%d-bit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}

// Validate checks that the format can be encoded.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, maxSampleRate, f.SampleRate)
	}

	switch f.BitDepth {
	case bitDepth8, bitDepth16, bitDepth24, bitDepth32:
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidFormat, f.BitDepth)
	}

	if f.Channels <= 0 || f.Channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, maxChannels, f.Channels)
	}

	return nil
}

// Buffer holds decoded interleaved samples.
type Buffer struct {
	Format Format

	// Samples are interleaved by channel at Format.BitDepth. 8-bit samples
	// are unsigned as stored in WAV; wider samples are signed.
	Samples []int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b.Format.Channels == 0 {
		return 0
	}

	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.Format.SampleRate == 0 {
		return 0
	}

	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// PCM16 returns the buffer converted to 16-bit samples. 8-bit input is
// unsigned and is re-centred around zero; wider input keeps its most
// significant 16 bits. A buffer that is already 16-bit is returned as is.
func (b *Buffer) PCM16() *Buffer {
	if b.Format.BitDepth == bitDepth16 {
		return b
	}

	converted := &Buffer{Format: b.Format, Samples: make([]int, len(b.Samples))}
	converted.Format.BitDepth = bitDepth16

	for i, sample := range b.Samples {
		switch {
		case b.Format.BitDepth == bitDepth8:
			converted.Samples[i] = (sample - pcm8Midpoint) << (bitDepth16 - bitDepth8)
		case b.Format.BitDepth > bitDepth16:
			converted.Samples[i] = sample >> (b.Format.BitDepth - bitDepth16)
		default:
			converted.Samples[i] = sample << (bitDepth16 - b.Format.BitDepth)
		}
	}

	return converted
}

// Silence returns a zero-valued buffer of the given length.
func Silence(format Format, seconds float64) *Buffer {
	frames := int(seconds * float64(format.SampleRate))
	if frames < 0 {
		frames = 0
	}

	return &Buffer{
		Format:  format,
		Samples: make([]int, frames*format.Channels),
	}
}
