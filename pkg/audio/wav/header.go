// ABOUTME: WAV container header layout
// ABOUTME: Encodes, parses and patches the fixed 44-byte RIFF/WAVE header
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

const (
	// HeaderSize is the fixed size of the RIFF/fmt/data header
	HeaderSize = 44

	// MaxBodyBytes is the largest body whose RIFF size fits in 32 bits
	MaxBodyBytes = math.MaxUint32 - (HeaderSize - 8)

	// Offsets of the two fields patched after the body length is final
	riffSizeOffset = 4
	dataSizeOffset = 40

	fmtChunkSize = 16
	formatPCM    = 1
)

// Header represents the header structure of a WAV file
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * BlockAlign
	BlockAlign    uint16 // bytes per frame
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// NewHeader builds a PCM header for format with the given body size
func NewHeader(format audio.Format, dataSize uint32) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + HeaderSize - 8,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: fmtChunkSize,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.ByteRate()),
		BlockAlign:    uint16(format.BytesPerFrame),
		BitsPerSample: uint16(format.BitsPerSample()),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// MarshalBinary encodes the header as 44 little-endian bytes
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	copy(b[0:4], h.ChunkID[:])
	binary.LittleEndian.PutUint32(b[4:8], h.ChunkSize)
	copy(b[8:12], h.Format[:])
	copy(b[12:16], h.Subchunk1ID[:])
	binary.LittleEndian.PutUint32(b[16:20], h.Subchunk1Size)
	binary.LittleEndian.PutUint16(b[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(b[22:24], h.NumChannels)
	binary.LittleEndian.PutUint32(b[24:28], h.SampleRate)
	binary.LittleEndian.PutUint32(b[28:32], h.ByteRate)
	binary.LittleEndian.PutUint16(b[32:34], h.BlockAlign)
	binary.LittleEndian.PutUint16(b[34:36], h.BitsPerSample)
	copy(b[36:40], h.Subchunk2ID[:])
	binary.LittleEndian.PutUint32(b[40:44], h.Subchunk2Size)
	return b, nil
}

// ParseHeader decodes and validates a 44-byte header
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	copy(h.ChunkID[:], data[0:4])
	h.ChunkSize = binary.LittleEndian.Uint32(data[4:8])
	copy(h.Format[:], data[8:12])
	copy(h.Subchunk1ID[:], data[12:16])
	h.Subchunk1Size = binary.LittleEndian.Uint32(data[16:20])
	h.AudioFormat = binary.LittleEndian.Uint16(data[20:22])
	h.NumChannels = binary.LittleEndian.Uint16(data[22:24])
	h.SampleRate = binary.LittleEndian.Uint32(data[24:28])
	h.ByteRate = binary.LittleEndian.Uint32(data[28:32])
	h.BlockAlign = binary.LittleEndian.Uint16(data[32:34])
	h.BitsPerSample = binary.LittleEndian.Uint16(data[34:36])
	copy(h.Subchunk2ID[:], data[36:40])
	h.Subchunk2Size = binary.LittleEndian.Uint32(data[40:44])

	if string(h.ChunkID[:]) != "RIFF" {
		return h, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(h.Format[:]) != "WAVE" {
		return h, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(h.Subchunk1ID[:]) != "fmt " {
		return h, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(h.Subchunk2ID[:]) != "data" {
		return h, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if h.AudioFormat != formatPCM {
		return h, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", h.AudioFormat)
	}

	return h, nil
}

// ReadHeader reads and parses the header at the start of path
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, audio.IOError(fmt.Errorf("failed to open WAV file: %w", err))
	}
	defer f.Close()

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return Header{}, audio.IOError(fmt.Errorf("failed to read WAV header: %w", err))
	}
	return ParseHeader(buf)
}

// PCMFormat returns the PCM format the header describes
func (h Header) PCMFormat() audio.Format {
	enc := audio.EncodingInvalid
	switch h.BitsPerSample {
	case 16:
		enc = audio.EncodingPCM16
	case 24:
		enc = audio.EncodingPCM24
	}
	return audio.Format{
		SampleRate:    int(h.SampleRate),
		Channels:      int(h.NumChannels),
		BytesPerFrame: int(h.BlockAlign),
		Encoding:      enc,
	}
}

// patchSizes seeks to the RIFF and data size fields of an open file and
// overwrites them with values derived from the final body length
func patchSizes(f io.WriteSeeker, bodyBytes int64) error {
	if bodyBytes < 0 || bodyBytes > MaxBodyBytes {
		return fmt.Errorf("%w: %d body bytes", ErrBodyTooLarge, bodyBytes)
	}
	var field [4]byte

	if _, err := f.Seek(riffSizeOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to RIFF size: %w", err)
	}
	binary.LittleEndian.PutUint32(field[:], uint32(bodyBytes+HeaderSize-8))
	if _, err := f.Write(field[:]); err != nil {
		return fmt.Errorf("failed to patch RIFF size: %w", err)
	}

	if _, err := f.Seek(dataSizeOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to data size: %w", err)
	}
	binary.LittleEndian.PutUint32(field[:], uint32(bodyBytes))
	if _, err := f.Write(field[:]); err != nil {
		return fmt.Errorf("failed to patch data size: %w", err)
	}
	return nil
}
