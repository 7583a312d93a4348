// ABOUTME: ffmpeg-backed source for HLS, DASH and any other URL ffmpeg can read
// ABOUTME: Decodes to 48kHz stereo s16le on the subprocess stdout
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"go.uber.org/zap"
)

// FFmpeg streams audio decoded by an ffmpeg subprocess
type FFmpeg struct {
	url    string
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	format audio.Format
}

// NewFFmpeg starts ffmpeg decoding url
func NewFFmpeg(url, binary string, logger *zap.Logger) (*FFmpeg, error) {
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w (install with: brew install ffmpeg)", err)
	}

	// Fixed output format for consistency
	format := audio.NewPCM16Format(48000, 2)

	cmd := exec.Command(binary,
		"-loglevel", "error",
		"-i", url,
		"-f", "s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	logger.Info("Streaming via ffmpeg", zap.String("url", url), zap.Stringer("format", format))

	return &FFmpeg{
		url:    url,
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReader(stdout),
		format: format,
	}, nil
}

func (s *FFmpeg) Read(p []byte) (int, error) {
	p = p[:frameAlign(len(p), s.format.BytesPerFrame)]
	n, err := io.ReadFull(s.reader, p)
	n = frameAlign(n, s.format.BytesPerFrame)
	if n > 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
		err = nil
	}
	return n, err
}

func (s *FFmpeg) Format() audio.Format { return s.format }
func (s *FFmpeg) Metadata() (string, string, string) {
	return "Live Stream", s.url, ""
}
func (s *FFmpeg) Close() error {
	s.stdout.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	return nil
}
