// ABOUTME: Feed/drain loop that transcodes a WAV capture through a block codec
// ABOUTME: Handles slot lifecycle, format change, end-of-stream, progress and trim
package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/progress"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/wav"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds each dequeue call
	DefaultTimeout = time.Second
	// DefaultMaxStalls is the number of consecutive idle passes tolerated
	DefaultMaxStalls = 10
)

// Trim selects a sub-range of the source as fractions of its duration
// removed from the start and from the end.
type Trim struct {
	Start float64
	End   float64
}

// Job is a one-shot transcode request
type Job struct {
	Source      string
	Destination string // derived from Source when empty
	Target      Target
	Trim        *Trim
	Progress    progress.Func
}

// Driver runs Jobs against devices and muxers created per job
type Driver struct {
	NewDevice func() (Device, error)
	NewMuxer  func(path string) (Muxer, error)

	// Extension replaces the source extension when Job.Destination is empty
	Extension string
	Timeout   time.Duration
	MaxStalls int
	Logger    *zap.Logger
}

// Transcode encodes job.Source and returns the destination path. Device and
// muxer are released on every exit path; a partial destination is left on
// disk when an error is returned.
func (d *Driver) Transcode(ctx context.Context, job Job) (string, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("codec")

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxStalls := d.MaxStalls
	if maxStalls <= 0 {
		maxStalls = DefaultMaxStalls
	}

	src, err := wav.OpenReader(job.Source)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	format := src.Format()
	if format.Encoding != audio.EncodingPCM16 {
		return "", fmt.Errorf("%w: source is %s", audio.ErrUnsupportedFormat, format)
	}

	target := job.Target
	if target.SampleRate == 0 {
		target.SampleRate = format.SampleRate
	}
	if target.Channels == 0 {
		target.Channels = format.Channels
	}
	if target.SampleRate != format.SampleRate || target.Channels != format.Channels {
		return "", fmt.Errorf("%w: target %dHz/%dch does not match source %s",
			audio.ErrUnsupportedTargetFormat, target.SampleRate, target.Channels, format)
	}

	total := src.BodyBytes()
	if job.Trim != nil {
		if total, err = src.Window(1, job.Trim.Start, job.Trim.End); err != nil {
			return "", fmt.Errorf("invalid trim: %w", err)
		}
	}

	dst := job.Destination
	if dst == "" {
		dst = destinationFor(job.Source, d.Extension)
	}

	dev, err := d.NewDevice()
	if err != nil {
		return "", fmt.Errorf("failed to create codec device: %w", err)
	}
	defer func() {
		if err := dev.Release(); err != nil {
			logger.Warn("Failed to release codec device", zap.Error(err))
		}
	}()

	if err := dev.Configure(target); err != nil {
		return "", fmt.Errorf("%w: %v", audio.ErrUnsupportedTargetFormat, err)
	}
	if err := dev.Start(); err != nil {
		return "", fmt.Errorf("failed to start codec device: %w", err)
	}

	mux, err := d.NewMuxer(dst)
	if err != nil {
		return "", audio.IOError(fmt.Errorf("failed to create muxer: %w", err))
	}
	muxClosed := false
	defer func() {
		if !muxClosed {
			mux.Close()
		}
	}()

	reporter := progress.New(job.Progress)
	defer reporter.Close()

	bytesPerFrame := format.BytesPerFrame
	chunkSize := target.SampleRate
	if capacity := dev.InputCapacity(); capacity > 0 && chunkSize > capacity {
		chunkSize = capacity
	}
	chunkSize -= chunkSize % bytesPerFrame
	if chunkSize < bytesPerFrame {
		chunkSize = bytesPerFrame
	}
	buf := make([]byte, chunkSize)

	logger.Info("Starting transcode",
		zap.String("source", job.Source),
		zap.String("destination", dst),
		zap.String("mime", target.MimeType),
		zap.Int64("bytes", total),
		zap.Int("chunk", chunkSize))

	var (
		consumed   int64
		inputDone  bool
		outputDone bool
		track      = -1
		stalls     int
	)

	ptsUs := func() int64 {
		return 1_000_000 * (consumed / int64(bytesPerFrame)) / int64(target.SampleRate)
	}

	for !outputDone {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		active := false

		// Feed until the device stops handing out input slots
		for !inputDone {
			idx, status, err := dev.DequeueInput(timeout)
			if err != nil {
				return "", fmt.Errorf("failed to dequeue input slot: %w", err)
			}
			if status != StatusOK {
				break
			}
			active = true

			n, err := io.ReadFull(src, buf)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return "", fmt.Errorf("failed to read source: %w", err)
			}

			if n == 0 {
				if err := dev.FillInput(idx, nil, ptsUs(), FlagEndOfStream); err != nil {
					return "", fmt.Errorf("failed to queue end of stream: %w", err)
				}
				inputDone = true
				break
			}

			if err := dev.FillInput(idx, buf[:n], ptsUs(), 0); err != nil {
				return "", fmt.Errorf("failed to fill input slot: %w", err)
			}
			consumed += int64(n)
		}

		// Drain everything that is ready. Results that hand back no buffer
		// count against a per-pass retry budget.
		retries := 0
	drain:
		for !outputDone {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			idx, info, status, err := dev.DequeueOutput(timeout)
			if err != nil {
				return "", fmt.Errorf("failed to dequeue output slot: %w", err)
			}

			switch status {
			case StatusOK:
				active = true
				if err := d.writeOutput(dev, mux, track, idx, info); err != nil {
					return "", err
				}
				if info.Flags.Has(FlagEndOfStream) {
					outputDone = true
				}
			case StatusFormatChanged:
				if track >= 0 {
					logger.Warn("Ignoring format change after muxer start")
					retries++
					if retries >= maxStalls {
						break drain
					}
					continue
				}
				active = true
				of := dev.OutputFormat()
				if track, err = mux.AddTrack(of); err != nil {
					return "", audio.IOError(fmt.Errorf("failed to add track: %w", err))
				}
				if err := mux.Start(); err != nil {
					return "", audio.IOError(fmt.Errorf("failed to start muxer: %w", err))
				}
				logger.Debug("Output format changed",
					zap.String("mime", of.MimeType), zap.Int("rate", of.SampleRate), zap.Int("channels", of.Channels))
			case StatusNoOutput:
				retries++
				if retries >= maxStalls {
					break drain
				}
			default:
				break drain
			}
		}

		if total > 0 {
			reporter.Report(float64(consumed) / float64(total) * 100)
		}

		if active {
			stalls = 0
			continue
		}
		stalls++
		if stalls >= maxStalls {
			return "", fmt.Errorf("%w: no progress after %d attempts of %v", audio.ErrCodecTimeout, stalls, timeout)
		}
	}

	muxClosed = true
	if err := mux.Close(); err != nil {
		return "", audio.IOError(fmt.Errorf("failed to close muxer: %w", err))
	}

	reporter.Complete()
	logger.Info("Transcode complete", zap.String("destination", dst), zap.Int64("bytes", consumed))
	return dst, nil
}

func (d *Driver) writeOutput(dev Device, mux Muxer, track, idx int, info BufferInfo) error {
	defer dev.ReleaseOutput(idx)

	if info.Flags.Has(FlagCodecConfig) || info.Size == 0 {
		return nil
	}
	if track < 0 {
		return fmt.Errorf("codec produced output before announcing its format")
	}

	data, err := dev.ReadOutput(idx)
	if err != nil {
		return fmt.Errorf("failed to read output slot: %w", err)
	}
	if end := info.Offset + info.Size; info.Offset >= 0 && end <= len(data) {
		data = data[info.Offset:end]
	}
	if err := mux.WriteSample(track, data, info); err != nil {
		return audio.IOError(fmt.Errorf("failed to write sample: %w", err))
	}
	return nil
}

func destinationFor(source, ext string) string {
	if ext == "" {
		ext = ".ogg"
	}
	return strings.TrimSuffix(source, filepath.Ext(source)) + ext
}
