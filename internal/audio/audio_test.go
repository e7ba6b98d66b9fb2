package audio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/voice-narrator/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monoFormat = audio.Format{SampleRate: 8000, BitDepth: 16, Channels: 1}

func encode(t *testing.T, buffer *audio.Buffer) []byte {
	t.Helper()

	data, err := audio.EncodeBytes(buffer)
	require.NoError(t, err)

	return data
}

func constant(format audio.Format, value, frames int) *audio.Buffer {
	samples := make([]int, frames*format.Channels)
	for i := range samples {
		samples[i] = value
	}

	return &audio.Buffer{Format: format, Samples: samples}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	original := &audio.Buffer{Format: monoFormat, Samples: []int{0, 100, -100, 32767, -32768}}

	decoded, err := audio.Decode(encode(t, original))
	require.NoError(t, err)

	assert.Equal(t, original.Format, decoded.Format)
	assert.Equal(t, original.Samples, decoded.Samples)
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	_, err := audio.Decode([]byte("definitely not a wav file"))
	require.ErrorIs(t, err, audio.ErrInvalidWAV)
}

func TestFormat_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, monoFormat.Validate())

	invalid := []audio.Format{
		{SampleRate: 0, BitDepth: 16, Channels: 1},
		{SampleRate: 8000, BitDepth: 12, Channels: 1},
		{SampleRate: 8000, BitDepth: 16, Channels: 0},
		{SampleRate: 400000, BitDepth: 16, Channels: 1},
	}

	for _, format := range invalid {
		require.ErrorIs(t, format.Validate(), audio.ErrInvalidFormat, format.String())
	}
}

func TestAssembler_PreservesOrderWithPauses(t *testing.T) {
	t.Parallel()

	assembler := audio.NewAssembler(0.001) // 8 frames at 8 kHz

	assembled, err := assembler.Assemble([][]byte{
		encode(t, constant(monoFormat, 1, 4)),
		encode(t, constant(monoFormat, 2, 3)),
		encode(t, constant(monoFormat, 3, 2)),
	})
	require.NoError(t, err)

	expected := []int{1, 1, 1, 1}
	expected = append(expected, make([]int, 8)...)
	expected = append(expected, 2, 2, 2)
	expected = append(expected, make([]int, 8)...)
	expected = append(expected, 3, 3)

	assert.Equal(t, expected, assembled.Samples)
	assert.Equal(t, monoFormat, assembled.Format)
}

func TestAssembler_SingleSegmentHasNoPause(t *testing.T) {
	t.Parallel()

	assembled, err := audio.NewAssembler(1).Assemble([][]byte{encode(t, constant(monoFormat, 7, 5))})
	require.NoError(t, err)

	assert.Equal(t, []int{7, 7, 7, 7, 7}, assembled.Samples)
}

func TestAssembler_Errors(t *testing.T) {
	t.Parallel()

	assembler := audio.NewAssembler(0)

	_, err := assembler.Assemble(nil)
	require.ErrorIs(t, err, audio.ErrNoSegments)

	stereo := audio.Format{SampleRate: 8000, BitDepth: 16, Channels: 2}

	_, err = assembler.Assemble([][]byte{
		encode(t, constant(monoFormat, 1, 2)),
		encode(t, constant(stereo, 1, 2)),
	})
	require.ErrorIs(t, err, audio.ErrFormatMismatch)

	_, err = assembler.Assemble([][]byte{encode(t, constant(monoFormat, 1, 2)), []byte("broken")})
	require.ErrorIs(t, err, audio.ErrInvalidWAV)
}

func TestBuffer_Duration(t *testing.T) {
	t.Parallel()

	buffer := constant(audio.Format{SampleRate: 8000, BitDepth: 16, Channels: 2}, 0, 4000)

	assert.Equal(t, 4000, buffer.Frames())
	assert.Equal(t, 500*time.Millisecond, buffer.Duration())
	assert.Len(t, audio.Silence(monoFormat, 0.5).Samples, 4000)
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.wav")

	written, err := audio.WriteFile(path, constant(monoFormat, 5, 10))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), written)

	decoded, err := audio.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 10, decoded.Frames())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestWriteFile_InvalidFormatWritesNothing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")

	_, err := audio.WriteFile(path, &audio.Buffer{Format: audio.Format{}, Samples: []int{1}})
	require.ErrorIs(t, err, audio.ErrInvalidFormat)
	assert.NoFileExists(t, path)
}

// floatWAV builds an IEEE float32 WAV by hand. With extensible set, the fmt
// chunk uses WAVE_FORMAT_EXTENSIBLE with a float sub-format.
func floatWAV(t *testing.T, sampleRate, channels int, samples []float32, extensible bool) []byte {
	t.Helper()

	const bitsPerSample = 32

	blockAlign := channels * bitsPerSample / 8

	var fmtChunk bytes.Buffer

	formatTag := uint16(3)
	if extensible {
		formatTag = 0xFFFE
	}

	for _, field := range []any{
		formatTag,
		uint16(channels),
		uint32(sampleRate),
		uint32(sampleRate * blockAlign),
		uint16(blockAlign),
		uint16(bitsPerSample),
	} {
		require.NoError(t, binary.Write(&fmtChunk, binary.LittleEndian, field))
	}

	if extensible {
		subFormat := [16]byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
			0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71}

		for _, field := range []any{uint16(22), uint16(bitsPerSample), uint32(4), subFormat} {
			require.NoError(t, binary.Write(&fmtChunk, binary.LittleEndian, field))
		}
	}

	var pcm bytes.Buffer
	for _, sample := range samples {
		require.NoError(t, binary.Write(&pcm, binary.LittleEndian, sample))
	}

	var body bytes.Buffer
	body.WriteString("WAVE")
	body.WriteString("fmt ")
	require.NoError(t, binary.Write(&body, binary.LittleEndian, uint32(fmtChunk.Len())))
	body.Write(fmtChunk.Bytes())
	body.WriteString("data")
	require.NoError(t, binary.Write(&body, binary.LittleEndian, uint32(pcm.Len())))
	body.Write(pcm.Bytes())

	var out bytes.Buffer
	out.WriteString("RIFF")
	require.NoError(t, binary.Write(&out, binary.LittleEndian, uint32(body.Len())))
	out.Write(body.Bytes())

	return out.Bytes()
}

func TestDecode_Float32(t *testing.T) {
	t.Parallel()

	decoded, err := audio.Decode(floatWAV(t, 24000, 1, []float32{0, 0.5, -0.5, 1, -1, 1.5}, false))
	require.NoError(t, err)

	assert.Equal(t, audio.Format{SampleRate: 24000, BitDepth: 16, Channels: 1}, decoded.Format)
	assert.Equal(t, []int{0, 16384, -16384, math.MaxInt16, math.MinInt16, math.MaxInt16}, decoded.Samples)
}

func TestDecode_ExtensibleFloat(t *testing.T) {
	t.Parallel()

	decoded, err := audio.Decode(floatWAV(t, 24000, 2, []float32{0.25, -0.25, 0, 0}, true))
	require.NoError(t, err)

	assert.Equal(t, audio.Format{SampleRate: 24000, BitDepth: 16, Channels: 2}, decoded.Format)
	assert.Equal(t, []int{8192, -8192, 0, 0}, decoded.Samples)
}

func TestAssembler_FloatSegments(t *testing.T) {
	t.Parallel()

	assembled, err := audio.NewAssembler(0.5).Assemble([][]byte{
		floatWAV(t, 24000, 1, []float32{0.5, 0.5}, false),
		floatWAV(t, 24000, 1, []float32{-0.5}, false),
	})
	require.NoError(t, err)

	assert.Equal(t, audio.Format{SampleRate: 24000, BitDepth: 16, Channels: 1}, assembled.Format)
	require.Len(t, assembled.Samples, 2+12000+1)
	assert.Equal(t, 16384, assembled.Samples[0])
	assert.Equal(t, -16384, assembled.Samples[len(assembled.Samples)-1])

	data, err := audio.EncodeBytes(assembled)
	require.NoError(t, err)

	roundTrip, err := audio.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 16, roundTrip.Format.BitDepth)
}

func TestAssembler_ConvertsWideSegmentsTo16Bit(t *testing.T) {
	t.Parallel()

	format24 := audio.Format{SampleRate: 24000, BitDepth: 24, Channels: 1}
	format16 := audio.Format{SampleRate: 24000, BitDepth: 16, Channels: 1}

	assembled, err := audio.NewAssembler(0).Assemble([][]byte{
		encode(t, &audio.Buffer{Format: format24, Samples: []int{25600, -25600}}),
		encode(t, &audio.Buffer{Format: format16, Samples: []int{7}}),
	})
	require.NoError(t, err)

	assert.Equal(t, format16, assembled.Format)
	assert.Equal(t, []int{100, -100, 7}, assembled.Samples)
}

func TestBuffer_PCM16(t *testing.T) {
	t.Parallel()

	eight := &audio.Buffer{Format: audio.Format{SampleRate: 8000, BitDepth: 8, Channels: 1}, Samples: []int{128, 255, 0}}
	assert.Equal(t, []int{0, 127 << 8, -128 << 8}, eight.PCM16().Samples)

	wide := &audio.Buffer{Format: audio.Format{SampleRate: 8000, BitDepth: 32, Channels: 1}, Samples: []int{1 << 20}}
	assert.Equal(t, []int{1 << 4}, wide.PCM16().Samples)

	sixteen := constant(monoFormat, 3, 2)
	assert.Same(t, sixteen, sixteen.PCM16())
}
