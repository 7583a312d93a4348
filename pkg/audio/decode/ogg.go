// ABOUTME: Ogg Opus file reader producing 16-bit PCM
// ABOUTME: Parses pages with pion's oggreader and drops the pre-skip
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// oggOpusRate is the granule clock of Ogg Opus
const oggOpusRate = 48000

// OggOpus reads an Ogg Opus file as 48kHz PCM16. It assumes one packet per
// page, which is how OggMuxer writes files.
type OggOpus struct {
	file     *os.File
	reader   *oggreader.OggReader
	decoder  *OpusDecoder
	header   *oggreader.OggHeader
	skip     int // frames still to drop from the start
	pending  []byte
	finished bool
}

// OpenOggOpus opens path and reads the identification header
func OpenOggOpus(path string) (*OggOpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, audio.IOError(fmt.Errorf("failed to open %s: %w", path, err))
	}

	reader, header, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", audio.ErrUnsupportedFormat, err)
	}

	dec, err := NewOpus(audio.NewPCM16Format(oggOpusRate, int(header.Channels)))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &OggOpus{
		file:    f,
		reader:  reader,
		decoder: dec,
		header:  header,
		skip:    int(header.PreSkip),
	}, nil
}

// Format returns the decoded PCM format
func (o *OggOpus) Format() audio.Format { return o.decoder.Format() }

// InputRate returns the rate the stream was encoded from
func (o *OggOpus) InputRate() int { return int(o.header.SampleRate) }

// PreSkip returns the number of 48kHz frames dropped from the start
func (o *OggOpus) PreSkip() int { return int(o.header.PreSkip) }

// Read fills p with decoded little-endian PCM
func (o *OggOpus) Read(p []byte) (int, error) {
	for len(o.pending) == 0 {
		if o.finished {
			return 0, io.EOF
		}
		if err := o.decodePage(); err != nil {
			return 0, err
		}
	}
	n := copy(p, o.pending)
	o.pending = o.pending[n:]
	return n, nil
}

func (o *OggOpus) decodePage() error {
	payload, _, err := o.reader.ParseNextPage()
	if errors.Is(err, io.EOF) {
		o.finished = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse ogg page: %w", err)
	}
	if bytes.HasPrefix(payload, []byte("OpusTags")) || len(payload) == 0 {
		return nil
	}
	samples, err := o.decoder.Decode(payload)
	if err != nil {
		return err
	}

	channels := o.decoder.Format().Channels
	frames := len(samples) / channels
	start := 0
	if o.skip > 0 {
		start = min(o.skip, frames)
		o.skip -= start
	}
	valid := samples[start*channels : frames*channels]
	if cap(o.pending) < len(valid)*2 {
		o.pending = make([]byte, len(valid)*2)
	}
	o.pending = o.pending[:len(valid)*2]
	audio.Int16ToBytesLE(o.pending, valid)
	return nil
}

// Close closes the file
func (o *OggOpus) Close() error {
	o.decoder.Close()
	return o.file.Close()
}
