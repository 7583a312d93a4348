// ABOUTME: Ogg Opus file source for replaying compressed recordings
// ABOUTME: Decodes at 48kHz and reopens the file when looping
package source

import (
	"errors"
	"io"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/decode"
	"go.uber.org/zap"
)

// OggOpus reads an Ogg Opus file
type OggOpus struct {
	path    string
	title   string
	loop    bool
	decoder *decode.OggOpus
}

// NewOggOpus opens an Ogg Opus file
func NewOggOpus(path string, loop bool, logger *zap.Logger) (*OggOpus, error) {
	d, err := decode.OpenOggOpus(path)
	if err != nil {
		return nil, err
	}

	title := titleFromPath(path)
	logger.Info("Loaded Ogg Opus",
		zap.String("title", title),
		zap.Int("input_rate", d.InputRate()),
		zap.Stringer("format", d.Format()))
	return &OggOpus{path: path, title: title, loop: loop, decoder: d}, nil
}

func (s *OggOpus) Read(p []byte) (int, error) {
	bpf := s.decoder.Format().BytesPerFrame
	n, err := s.decoder.Read(p[:frameAlign(len(p), bpf)])
	if errors.Is(err, io.EOF) && s.loop {
		s.decoder.Close()
		d, oerr := decode.OpenOggOpus(s.path)
		if oerr != nil {
			return n, oerr
		}
		s.decoder = d
		if n == 0 {
			return s.Read(p)
		}
		err = nil
	}
	return n, err
}

func (s *OggOpus) Format() audio.Format { return s.decoder.Format() }

func (s *OggOpus) Metadata() (string, string, string) { return s.title, "", "" }

func (s *OggOpus) Close() error { return s.decoder.Close() }
