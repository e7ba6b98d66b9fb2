package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format tags.
const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// RIFF layout offsets used to read the sub-format of an extensible fmt chunk.
const (
	riffHeaderSize        = 12
	chunkHeaderSize       = 8
	extensibleFmtSize     = 40
	extensibleSubFormatAt = 24
)

var (
	// ErrInvalidWAV is returned when a payload is not a readable WAV file.
	ErrInvalidWAV = errors.New("invalid WAV data")
	// ErrUnsupportedEncoding is returned for WAV files that are neither
	// integer PCM nor IEEE float.
	ErrUnsupportedEncoding = errors.New("unsupported WAV encoding")
)

// Decode parses a complete WAV payload into a Buffer.
//
// Integer PCM keeps its source bit depth. IEEE float payloads (32 or 64 bit)
// are scaled to 16-bit samples, since Buffer holds integers only.
// WAVE_FORMAT_EXTENSIBLE payloads are decoded according to their sub-format.
func Decode(data []byte) (*Buffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidWAV, len(data))
	}

	formatTag := decoder.WavAudioFormat
	if formatTag == wavFormatExtensible {
		subFormat, ok := extensibleSubFormat(data)
		if !ok {
			return nil, fmt.Errorf("%w: extensible fmt chunk without sub-format", ErrInvalidWAV)
		}

		formatTag = subFormat
	}

	format := Format{
		SampleRate: int(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
		Channels:   int(decoder.NumChans),
	}

	var (
		buffer *Buffer
		err    error
	)

	switch formatTag {
	case wavFormatPCM:
		buffer, err = decodePCM(decoder, format)
	case wavFormatIEEEFloat:
		buffer, err = decodeFloat(decoder, format)
	default:
		return nil, fmt.Errorf("%w: format tag %#x", ErrUnsupportedEncoding, formatTag)
	}

	if err != nil {
		return nil, err
	}

	err = buffer.Format.Validate()
	if err != nil {
		return nil, err
	}

	return buffer, nil
}

func decodePCM(decoder *wav.Decoder, format Format) (*Buffer, error) {
	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	return &Buffer{Format: format, Samples: pcm.Data}, nil
}

func decodeFloat(decoder *wav.Decoder, format Format) (*Buffer, error) {
	if format.BitDepth != bitDepth32 && format.BitDepth != bitDepth64 {
		return nil, fmt.Errorf("%w: %d-bit float", ErrUnsupportedEncoding, format.BitDepth)
	}

	if !decoder.WasPCMAccessed() {
		err := decoder.FwdToPCM()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
		}
	}

	raw := make([]byte, decoder.PCMChunk.Size)

	_, err := io.ReadFull(decoder.PCMChunk, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated float data: %w", ErrInvalidWAV, err)
	}

	width := format.BitDepth / bitsPerByte
	samples := make([]int, 0, len(raw)/width)

	for offset := 0; offset+width <= len(raw); offset += width {
		var value float64
		if format.BitDepth == bitDepth32 {
			value = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[offset:])))
		} else {
			value = math.Float64frombits(binary.LittleEndian.Uint64(raw[offset:]))
		}

		samples = append(samples, floatToPCM16(value))
	}

	format.BitDepth = bitDepth16

	return &Buffer{Format: format, Samples: samples}, nil
}

// floatToPCM16 scales a [-1, 1] sample to a 16-bit integer, clipping values
// outside the range.
func floatToPCM16(value float64) int {
	switch {
	case math.IsNaN(value):
		return 0
	case value >= 1:
		return math.MaxInt16
	case value <= -1:
		return math.MinInt16
	default:
		return int(math.Round(value * math.MaxInt16))
	}
}

// extensibleSubFormat returns the format tag stored in the sub-format GUID of
// a WAVE_FORMAT_EXTENSIBLE fmt chunk.
func extensibleSubFormat(data []byte) (uint16, bool) {
	offset := riffHeaderSize

	for offset+chunkHeaderSize <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+chunkHeaderSize]))
		body := offset + chunkHeaderSize

		if id == "fmt " {
			if size < extensibleFmtSize || body+extensibleSubFormatAt+2 > len(data) {
				return 0, false
			}

			return binary.LittleEndian.Uint16(data[body+extensibleSubFormatAt:]), true
		}

		offset = body + size + size%2
	}

	return 0, false
}

// Encode writes buffer as a PCM WAV stream.
func Encode(writer io.WriteSeeker, buffer *Buffer) error {
	err := buffer.Format.Validate()
	if err != nil {
		return err
	}

	encoder := wav.NewEncoder(
		writer,
		buffer.Format.SampleRate,
		buffer.Format.BitDepth,
		buffer.Format.Channels,
		wavFormatPCM,
	)

	err = encoder.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: buffer.Format.Channels,
			SampleRate:  buffer.Format.SampleRate,
		},
		Data:           buffer.Samples,
		SourceBitDepth: buffer.Format.BitDepth,
	})
	if err != nil {
		return fmt.Errorf("failed to encode samples: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}

	return nil
}

// EncodeBytes returns buffer as a complete WAV payload at the buffer's own
// bit depth. Callers that need 16-bit output convert with PCM16 first, as
// Assembler does.
func EncodeBytes(buffer *Buffer) ([]byte, error) {
	var sink seekBuffer

	err := Encode(&sink, buffer)
	if err != nil {
		return nil, err
	}

	return sink.data, nil
}

// WriteFile encodes buffer and writes it to path. The file is written under a
// temporary name and renamed, so a failed write leaves no output behind.
func WriteFile(path string, buffer *Buffer) (int64, error) {
	data, err := EncodeBytes(buffer)
	if err != nil {
		return 0, err
	}

	err = WriteBytes(path, data)
	if err != nil {
		return 0, err
	}

	return int64(len(data)), nil
}

// WriteBytes atomically writes an already encoded payload to path. Parent
// directories are created. The payload goes to a temporary file in the same
// directory which is renamed over path, so readers never see a partial file
// and a failure leaves path untouched.
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".narrator-*.wav.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for '%s': %w", path, err)
	}

	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr == nil && closeErr == nil {
		writeErr = os.Chmod(tempName, filePermissions)
	}

	if writeErr == nil && closeErr == nil {
		writeErr = os.Rename(tempName, path)
	}

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to write audio file '%s': %w", path, errors.Join(writeErr, closeErr))
	}

	return nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes once all samples are written.
type seekBuffer struct {
	data []byte
	pos  int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.data) {
		s.data = append(s.data, make([]byte, end-len(s.data))...)
	}

	copy(s.data[s.pos:end], p)
	s.pos = end

	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.data))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	target := base + offset
	if target < 0 {
		return 0, fmt.Errorf("negative seek position %d", target)
	}

	s.pos = int(target)

	return target, nil
}
