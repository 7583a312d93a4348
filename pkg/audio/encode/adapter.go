// ABOUTME: Feeds captured PCM to a streaming encoder in fixed-size blocks
// ABOUTME: Supports whole-file, trimmed and stream conversion with progress
package encode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/progress"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/wav"
	"go.uber.org/zap"
)

// DefaultBlockSize is the number of source bytes fed per encoder call
const DefaultBlockSize = 1024

// Trim removes Start units from the beginning and End units from the end of
// a capture whose nominal length is Duration units.
type Trim struct {
	Duration float64
	Start    float64
	End      float64
}

// Adapter converts WAV captures with a streaming encoder
type Adapter struct {
	Factory   Factory
	BlockSize int
	Logger    *zap.Logger
}

// Convert encodes the whole body of src into dst. An empty dst replaces the
// source extension with the factory's.
func (a *Adapter) Convert(ctx context.Context, src, dst string, info Info, fn progress.Func) (audio.Record, error) {
	return a.convertFile(ctx, src, dst, info, nil, fn)
}

// ConvertTrim encodes the trimmed region of src into dst. Progress is
// relative to the trimmed length.
func (a *Adapter) ConvertTrim(ctx context.Context, src, dst string, info Info, trim Trim, fn progress.Func) (audio.Record, error) {
	return a.convertFile(ctx, src, dst, info, &trim, fn)
}

// ConvertStream encodes a WAV byte stream whose total length is known but
// which cannot be reopened, e.g. a network upload. The header is skipped.
func (a *Adapter) ConvertStream(ctx context.Context, r io.Reader, totalSize int64, dst string, info Info, fn progress.Func) (audio.Record, error) {
	if err := info.Validate(); err != nil {
		return audio.Record{}, err
	}
	if dst == "" {
		return audio.Record{}, fmt.Errorf("destination required for stream conversion")
	}

	if _, err := io.CopyN(io.Discard, r, wav.HeaderSize); err != nil {
		return audio.Record{}, audio.IOError(fmt.Errorf("failed to skip WAV header: %w", err))
	}
	body := totalSize - wav.HeaderSize
	if body < 0 {
		body = 0
	}

	rec, err := a.feed(ctx, io.LimitReader(r, body), body, dst, info, fn)
	rec.BodyBytes = body
	return rec, err
}

func (a *Adapter) convertFile(ctx context.Context, src, dst string, info Info, trim *Trim, fn progress.Func) (audio.Record, error) {
	if err := info.Validate(); err != nil {
		return audio.Record{}, err
	}

	r, err := wav.OpenReader(src)
	if err != nil {
		return audio.Record{}, fmt.Errorf("failed to open source: %w", err)
	}
	defer r.Close()

	total := r.BodyBytes()
	if trim != nil {
		if total, err = r.Window(trim.Duration, trim.Start, trim.End); err != nil {
			return audio.Record{}, fmt.Errorf("invalid trim: %w", err)
		}
	}

	dst = DestinationFor(src, dst, a.Factory.Extension())
	if filepath.Clean(dst) == filepath.Clean(src) {
		return audio.Record{}, fmt.Errorf("destination %s would overwrite the source", dst)
	}

	rec, err := a.feed(ctx, r, total, dst, info, fn)
	rec.SourcePath = src
	rec.BodyBytes = r.BodyBytes()
	return rec, err
}

// feed streams blocks from r to a new encoder at dst. The encoder is closed
// on every path; a partial dst is left on disk on error.
func (a *Adapter) feed(ctx context.Context, r io.Reader, total int64, dst string, info Info, fn progress.Func) (rec audio.Record, err error) {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("encode")

	blockSize := a.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	blockSize -= blockSize % 2

	rec = audio.Record{
		SampleRate:    info.SampleRate,
		Channels:      info.Channels,
		BytesPerFrame: info.Channels * 2,
		Quality:       info.Quality,
	}

	enc, err := a.Factory.Open(dst, info)
	if err != nil {
		return rec, fmt.Errorf("failed to open encoder: %w", err)
	}

	reporter := progress.New(fn)
	defer func() {
		if cerr := enc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close encoder: %w", cerr)
		}
		if err == nil {
			reporter.Complete()
			return
		}
		reporter.Close()
		logger.Error("Conversion failed", zap.String("destination", dst), zap.Error(err))
	}()

	logger.Info("Starting conversion",
		zap.String("destination", dst),
		zap.Int64("bytes", total),
		zap.Int("rate", info.SampleRate),
		zap.Int("channels", info.Channels),
		zap.Float64("quality", info.Quality))

	buf := make([]byte, blockSize)
	samples := make([]int16, blockSize/2)
	var consumed int64

	for {
		if err := ctx.Err(); err != nil {
			return rec, err
		}

		n, rerr := io.ReadFull(r, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return rec, audio.IOError(fmt.Errorf("failed to read source: %w", rerr))
		}
		if n == 0 {
			break
		}

		count := audio.BytesToInt16LE(samples, buf[:n])
		if err := enc.WriteFrames(samples, 0, count); err != nil {
			return rec, fmt.Errorf("failed to write frames: %w", err)
		}

		consumed += int64(n)
		if total > 0 {
			reporter.Report(float64(consumed) / float64(total) * 100)
		}
		if rerr != nil {
			break
		}
	}

	rec.CompressedPath = dst
	logger.Info("Conversion complete", zap.String("destination", dst), zap.Int64("bytes", consumed))
	return rec, nil
}

// DestinationFor returns dst, or when it is empty, src with its extension
// replaced by ext. A derived name never equals src.
func DestinationFor(src, dst, ext string) string {
	if dst != "" {
		return dst
	}
	base := strings.TrimSuffix(src, filepath.Ext(src))
	if base+ext == src {
		return base + "-out" + ext
	}
	return base + ext
}
