// ABOUTME: FLAC file source
// ABOUTME: Decodes with mewkiz/flac and scales samples to 16 bits
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/mewkiz/flac"
	"go.uber.org/zap"
)

// FLAC reads from a FLAC file
type FLAC struct {
	file     *os.File
	stream   *flac.Stream
	format   audio.Format
	bitDepth int
	title    string
	loop     bool
	pending  []byte
}

// NewFLAC opens a FLAC file
func NewFLAC(path string, loop bool, logger *zap.Logger) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	title := titleFromPath(path)
	logger.Info("Loaded FLAC",
		zap.String("title", title),
		zap.Uint32("rate", info.SampleRate),
		zap.Uint8("channels", info.NChannels),
		zap.Uint8("bit_depth", info.BitsPerSample))

	return &FLAC{
		file:     f,
		stream:   stream,
		format:   audio.NewPCM16Format(int(info.SampleRate), int(info.NChannels)),
		bitDepth: int(info.BitsPerSample),
		title:    title,
		loop:     loop,
	}, nil
}

func (s *FLAC) Read(p []byte) (int, error) {
	want := frameAlign(len(p), s.format.BytesPerFrame)

	for len(s.pending) < want {
		frame, err := s.stream.ParseNext()
		if errors.Is(err, io.EOF) {
			if !s.loop {
				break
			}
			if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
				return 0, fmt.Errorf("failed to seek to start: %w", seekErr)
			}
			stream, decErr := flac.New(s.file)
			if decErr != nil {
				return 0, fmt.Errorf("failed to create new stream: %w", decErr)
			}
			s.stream = stream
			continue
		}
		if err != nil {
			return 0, err
		}

		channels := s.format.Channels
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				v := scaleTo16(frame.Subframes[ch].Samples[i], s.bitDepth)
				s.pending = append(s.pending, byte(v), byte(v>>8))
			}
		}
	}

	if len(s.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p[:want], s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	return n, nil
}

// scaleTo16 converts a sample of the given bit depth to 16 bits
func scaleTo16(sample int32, bitDepth int) int16 {
	shift := bitDepth - 16
	if shift > 0 {
		return int16(sample >> shift)
	}
	return int16(sample << -shift)
}

func (s *FLAC) Format() audio.Format { return s.format }
func (s *FLAC) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLAC) Close() error {
	return s.file.Close()
}
