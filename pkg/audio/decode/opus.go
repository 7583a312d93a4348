// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus packets to int16 samples
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is 120ms at 48kHz, the longest Opus packet
const maxOpusFrame = 5760

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	pcm     []int16
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (*OpusDecoder, error) {
	if format.Encoding != audio.EncodingPCM16 {
		return nil, fmt.Errorf("%w: opus decodes to 16-bit PCM, got %s", audio.ErrUnsupportedFormat, format.Encoding)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		pcm:     make([]int16, maxOpusFrame*format.Channels),
	}, nil
}

// Decode converts Opus bytes to samples. The result is valid until the next call.
func (d *OpusDecoder) Decode(data []byte) ([]int16, error) {
	n, err := d.decoder.Decode(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}
	return d.pcm[:n*d.format.Channels], nil
}

// Format returns the decoded PCM format
func (d *OpusDecoder) Format() audio.Format { return d.format }

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
