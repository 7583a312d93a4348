// ABOUTME: Audio source abstraction for streaming from files, URLs or a test tone
// ABOUTME: Every source produces interleaved little-endian 16-bit PCM bytes
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"go.uber.org/zap"
)

// Source provides PCM16 audio. Read returns whole frames only.
type Source interface {
	Read(p []byte) (int, error)
	Format() audio.Format
	// Metadata returns title, artist, album
	Metadata() (title, artist, album string)
	Close() error
}

// Options control how sources are opened
type Options struct {
	// Loop restarts file sources at end of file
	Loop bool
	// FFmpeg is the ffmpeg executable used for HLS and other URLs
	FFmpeg string
	Logger *zap.Logger
}

// New creates a source from a file path or HTTP URL.
// An empty path returns an endless test tone.
func New(pathOrURL string, opts Options) (Source, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("source")

	if pathOrURL == "" {
		return NewTone(ToneOptions{}), nil
	}

	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		if strings.Contains(pathOrURL, ".m3u8") {
			logger.Info("Streaming from HLS URL", zap.String("url", pathOrURL))
			return NewFFmpeg(pathOrURL, opts.FFmpeg, logger)
		}
		logger.Info("Streaming from HTTP URL", zap.String("url", pathOrURL))
		return NewHTTPMP3(pathOrURL, logger)
	}

	if _, err := os.Stat(pathOrURL); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", pathOrURL)
	}

	switch ext := strings.ToLower(filepath.Ext(pathOrURL)); ext {
	case ".mp3":
		return NewMP3(pathOrURL, opts.Loop, logger)
	case ".flac":
		return NewFLAC(pathOrURL, opts.Loop, logger)
	case ".wav":
		return NewWAV(pathOrURL, opts.Loop, logger)
	case ".ogg", ".opus":
		return NewOggOpus(pathOrURL, opts.Loop, logger)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac, .wav, .ogg)", ext)
	}
}

func titleFromPath(path string) string {
	filename := filepath.Base(path)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// frameAlign truncates n to a multiple of the frame size
func frameAlign(n, bytesPerFrame int) int {
	return n - n%bytesPerFrame
}
