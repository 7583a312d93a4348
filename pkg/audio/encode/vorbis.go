// ABOUTME: Vorbis streaming encoder backed by an ffmpeg subprocess
// ABOUTME: Pipes s16le samples into libvorbis and writes an Ogg file
package encode

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

// FFmpegVorbis opens encoders that run ffmpeg with libvorbis
type FFmpegVorbis struct {
	// Binary is the ffmpeg executable (default "ffmpeg" from PATH)
	Binary string
}

// Extension returns ".ogg"
func (FFmpegVorbis) Extension() string { return ".ogg" }

// Open starts ffmpeg writing to path
func (f FFmpegVorbis) Open(path string, info Info) (Encoder, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w (install with: brew install ffmpeg)", err)
	}

	// -f s16le: input format (signed 16-bit little-endian PCM)
	// -q:a: libvorbis quality, 0-10
	cmd := exec.Command(bin,
		"-loglevel", "error",
		"-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(info.SampleRate),
		"-ac", strconv.Itoa(info.Channels),
		"-i", "pipe:0",
		"-c:a", "libvorbis",
		"-q:a", strconv.FormatFloat(info.Quality*10, 'f', 1, 64),
		path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get ffmpeg stdin: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &ffmpegEncoder{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

type ffmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	buf    []byte
	closed bool
}

func (e *ffmpegEncoder) WriteFrames(samples []int16, offset, count int) error {
	if err := checkRange(samples, offset, count); err != nil {
		return err
	}
	if cap(e.buf) < count*2 {
		e.buf = make([]byte, count*2)
	}
	n := audio.Int16ToBytesLE(e.buf[:count*2], samples[offset:offset+count])
	if _, err := e.stdin.Write(e.buf[:n]); err != nil {
		return audio.IOError(fmt.Errorf("failed to write to ffmpeg: %w", err))
	}
	return nil
}

func (e *ffmpegEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w%s", err, e.detail())
	}
	return nil
}

// detail returns ffmpeg's error output; only valid after Wait
func (e *ffmpegEncoder) detail() string {
	msg := strings.TrimSpace(e.stderr.String())
	if msg == "" {
		return ""
	}
	return ": " + msg
}
