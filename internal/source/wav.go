// ABOUTME: WAV file source for replaying earlier captures
// ABOUTME: Reads the body of a 16-bit PCM container
package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/wav"
	"go.uber.org/zap"
)

// WAV reads a 16-bit PCM WAV file
type WAV struct {
	path   string
	reader *wav.Reader
	loop   bool
}

// NewWAV opens a WAV file
func NewWAV(path string, loop bool, logger *zap.Logger) (*WAV, error) {
	r, err := wav.OpenReader(path)
	if err != nil {
		return nil, err
	}
	if r.Format().Encoding != audio.EncodingPCM16 {
		r.Close()
		return nil, fmt.Errorf("%w: %s", audio.ErrUnsupportedFormat, r.Format())
	}

	logger.Info("Loaded WAV", zap.String("title", titleFromPath(path)), zap.Stringer("format", r.Format()))
	return &WAV{path: path, reader: r, loop: loop}, nil
}

func (s *WAV) Read(p []byte) (int, error) {
	bpf := s.reader.Format().BytesPerFrame
	p = p[:frameAlign(len(p), bpf)]
	n, err := io.ReadFull(s.reader, p)
	n = frameAlign(n, bpf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if n > 0 {
			err = nil
		} else {
			err = io.EOF
		}
		if s.loop && s.reader.BodyBytes() >= int64(bpf) {
			if werr := s.reader.Rewind(); werr != nil {
				return n, werr
			}
			if n == 0 {
				return s.Read(p)
			}
			err = nil
		}
	}
	return n, err
}

func (s *WAV) Format() audio.Format { return s.reader.Format() }
func (s *WAV) Metadata() (string, string, string) {
	return titleFromPath(s.path), "Capture", ""
}
func (s *WAV) Close() error {
	return s.reader.Close()
}
