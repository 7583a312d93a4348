// ABOUTME: Audio type definitions
// ABOUTME: Defines capture formats, encodings, and sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
)

// Encoding identifies the sample representation of a PCM stream
type Encoding int

const (
	EncodingInvalid Encoding = iota
	EncodingPCM16
	EncodingPCM24
	EncodingFloat32
)

// String returns the encoding name
func (e Encoding) String() string {
	switch e {
	case EncodingPCM16:
		return "pcm16"
	case EncodingPCM24:
		return "pcm24"
	case EncodingFloat32:
		return "float32"
	default:
		return "invalid"
	}
}

// BytesPerSample returns the size of one sample of one channel
func (e Encoding) BytesPerSample() int {
	switch e {
	case EncodingPCM16:
		return 2
	case EncodingPCM24:
		return 3
	case EncodingFloat32:
		return 4
	default:
		return 0
	}
}

// Format describes a raw PCM stream as negotiated with the host pipeline
type Format struct {
	SampleRate    int
	Channels      int
	BytesPerFrame int // all channels of one sample instant
	Encoding      Encoding
}

// NewPCM16Format returns an interleaved 16-bit format
func NewPCM16Format(sampleRate, channels int) Format {
	return Format{
		SampleRate:    sampleRate,
		Channels:      channels,
		BytesPerFrame: channels * 2,
		Encoding:      EncodingPCM16,
	}
}

// Validate checks that every field is positive and consistent
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.BytesPerFrame <= 0 {
		return fmt.Errorf("invalid bytes per frame: %d", f.BytesPerFrame)
	}
	if f.Encoding == EncodingInvalid {
		return fmt.Errorf("invalid encoding")
	}
	return nil
}

// ByteRate returns bytes per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.BytesPerFrame
}

// BitsPerSample returns the width of a single channel sample
func (f Format) BitsPerSample() int {
	if f.Channels <= 0 {
		return 0
	}
	return f.BytesPerFrame / f.Channels * 8
}

// String formats as e.g. "44100Hz/2ch/pcm16"
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Encoding)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// BytesToInt16LE decodes little-endian byte pairs into dst and returns the
// number of samples written. A trailing odd byte is ignored.
func BytesToInt16LE(dst []int16, src []byte) int {
	n := len(src) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(uint16(src[i*2]) | uint16(src[i*2+1])<<8)
	}
	return n
}

// Int16ToBytesLE encodes samples into dst as little-endian byte pairs
func Int16ToBytesLE(dst []byte, samples []int16) int {
	n := len(samples)
	if n > len(dst)/2 {
		n = len(dst) / 2
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(samples[i]))
	}
	return n * 2
}
