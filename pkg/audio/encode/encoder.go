// ABOUTME: Streaming encoder interface definition
// ABOUTME: Info parameters, validation and the Factory/Encoder contract
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

// Info holds the parameters a streaming encoder is opened with
type Info struct {
	Channels   int
	SampleRate int
	// Quality is the perceptual quality in (0, 1]
	Quality float64
}

// DefaultInfo returns mono 44.1kHz at quality 0.4
func DefaultInfo() Info {
	return Info{Channels: 1, SampleRate: 44100, Quality: 0.4}
}

// Validate rejects parameters no encoder can be opened with
func (i Info) Validate() error {
	if i.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", audio.ErrInvalidEncoderParameters, i.SampleRate)
	}
	if i.Channels <= 0 {
		return fmt.Errorf("%w: channels %d", audio.ErrInvalidEncoderParameters, i.Channels)
	}
	if i.Quality <= 0 || i.Quality > 1 {
		return fmt.Errorf("%w: quality %v not in (0, 1]", audio.ErrInvalidEncoderParameters, i.Quality)
	}
	return nil
}

// Encoder consumes interleaved 16-bit samples and writes a compressed file
type Encoder interface {
	// WriteFrames encodes samples[offset : offset+count]
	WriteFrames(samples []int16, offset, count int) error

	// Close flushes the bitstream and releases encoder resources
	Close() error
}

// Factory opens encoders writing to a path
type Factory interface {
	Open(path string, info Info) (Encoder, error)
	// Extension is the file extension of the produced files, e.g. ".ogg"
	Extension() string
}

func checkRange(samples []int16, offset, count int) error {
	if offset < 0 || count < 0 || offset+count > len(samples) {
		return fmt.Errorf("invalid sample range [%d:%d] of %d", offset, offset+count, len(samples))
	}
	return nil
}
