// ABOUTME: MP3 file and HTTP stream sources
// ABOUTME: Decodes with go-mp3, which always yields 16-bit stereo
package source

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
	"go.uber.org/zap"
)

// MP3 reads from an MP3 file
type MP3 struct {
	file    *os.File
	decoder *mp3.Decoder
	format  audio.Format
	title   string
	loop    bool
}

// NewMP3 opens an MP3 file
func NewMP3(path string, loop bool, logger *zap.Logger) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	title := titleFromPath(path)
	logger.Info("Loaded MP3", zap.String("title", title), zap.Int("rate", decoder.SampleRate()))

	return &MP3{
		file:    f,
		decoder: decoder,
		format:  audio.NewPCM16Format(decoder.SampleRate(), 2),
		title:   title,
		loop:    loop,
	}, nil
}

func (s *MP3) Read(p []byte) (int, error) {
	p = p[:frameAlign(len(p), s.format.BytesPerFrame)]
	n, err := io.ReadFull(s.decoder, p)
	n = frameAlign(n, s.format.BytesPerFrame)

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if !s.loop {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return n, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		decoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return n, fmt.Errorf("failed to create new decoder: %w", decErr)
		}
		s.decoder = decoder
		return n, nil
	}
	return n, err
}

func (s *MP3) Format() audio.Format { return s.format }
func (s *MP3) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *MP3) Close() error {
	return s.file.Close()
}

// HTTPMP3 streams MP3 from an HTTP URL. It ends on EOF.
type HTTPMP3 struct {
	url      string
	response *http.Response
	decoder  *mp3.Decoder
	format   audio.Format
}

// NewHTTPMP3 starts fetching url
func NewHTTPMP3(url string, logger *zap.Logger) (*HTTPMP3, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	logger.Info("Streaming MP3 from HTTP", zap.String("url", url), zap.Int("rate", decoder.SampleRate()))

	return &HTTPMP3{
		url:      url,
		response: resp,
		decoder:  decoder,
		format:   audio.NewPCM16Format(decoder.SampleRate(), 2),
	}, nil
}

func (s *HTTPMP3) Read(p []byte) (int, error) {
	p = p[:frameAlign(len(p), s.format.BytesPerFrame)]
	n, err := io.ReadFull(s.decoder, p)
	n = frameAlign(n, s.format.BytesPerFrame)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (s *HTTPMP3) Format() audio.Format { return s.format }
func (s *HTTPMP3) Metadata() (string, string, string) {
	return "HTTP Stream", s.url, ""
}
func (s *HTTPMP3) Close() error {
	return s.response.Body.Close()
}
