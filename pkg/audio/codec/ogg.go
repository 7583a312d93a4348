// ABOUTME: Ogg Opus muxer backed by pion's oggwriter
// ABOUTME: Converts microsecond presentation times to 48kHz RTP timestamps
package codec

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const opusPayloadType = 111

// OggMuxer writes a single Opus track to an Ogg file
type OggMuxer struct {
	path    string
	writer  *oggwriter.OggWriter
	started bool
	seq     uint16
	ssrc    uint32
}

// NewOggMuxer prepares an Ogg destination at path. The file is created when
// the track is added.
func NewOggMuxer(path string) (*OggMuxer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &OggMuxer{path: path, ssrc: rand.Uint32()}, nil
}

// Path returns the destination path
func (m *OggMuxer) Path() string { return m.path }

// AddTrack creates the file and writes the Opus identification headers
func (m *OggMuxer) AddTrack(format OutputFormat) (int, error) {
	if m.writer != nil {
		return -1, fmt.Errorf("ogg muxer supports a single track")
	}
	if format.MimeType != MimeOpus {
		return -1, fmt.Errorf("ogg muxer cannot carry %q", format.MimeType)
	}

	rate := format.InputRate
	if rate == 0 {
		rate = format.SampleRate
	}
	w, err := oggwriter.New(m.path, uint32(rate), uint16(format.Channels))
	if err != nil {
		return -1, fmt.Errorf("failed to create ogg file: %w", err)
	}
	m.writer = w
	return 0, nil
}

// Start allows samples to be written
func (m *OggMuxer) Start() error {
	if m.writer == nil {
		return fmt.Errorf("no track added")
	}
	m.started = true
	return nil
}

// WriteSample writes one Opus packet
func (m *OggMuxer) WriteSample(track int, data []byte, info BufferInfo) error {
	if !m.started {
		return fmt.Errorf("muxer not started")
	}
	if track != 0 {
		return fmt.Errorf("unknown track %d", track)
	}

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: m.seq,
			Timestamp:      uint32(info.PresentationTimeUs * opusClockRate / 1_000_000),
			SSRC:           m.ssrc,
		},
		Payload: data,
	}
	m.seq++

	return m.writer.WriteRTP(packet)
}

// Close finalizes the last page and closes the file
func (m *OggMuxer) Close() error {
	if m.writer == nil {
		return nil
	}
	w := m.writer
	m.writer = nil
	m.started = false
	return w.Close()
}
