// ABOUTME: Host render pipeline pulling PCM from a source through processors to a sink
// ABOUTME: Paced in real time for live playback, or as fast as possible for tests
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/source"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/output"
	"go.uber.org/zap"
)

// DefaultChunkDuration is the amount of audio moved per render pass
const DefaultChunkDuration = 20 * time.Millisecond

// Processor is an in-line audio node. Every chunk handed to ProcessFrames
// is drained with DrainOutput before the next one is pushed.
type Processor interface {
	Configure(format audio.Format) (audio.Format, error)
	IsActive() bool
	ProcessFrames(in []byte) int
	DrainOutput() []byte
	SignalEndOfStream()
	IsFinished() bool
	Flush()
	Reset()
}

// Pipeline moves audio from Source through Processors into Sink
type Pipeline struct {
	Source     source.Source
	Processors []Processor
	Sink       output.Output

	ChunkDuration time.Duration
	// Realtime paces chunks at playback speed
	Realtime bool
	// OnChunk is called after each chunk reaches the sink
	OnChunk func(bytes int)
	Logger  *zap.Logger
}

// Run configures the chain and renders until the source ends or ctx is
// cancelled. The sink is closed on return; processors are left configured so
// an armed capture can still be stopped.
func (p *Pipeline) Run(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pipeline")

	format := p.Source.Format()
	for i, proc := range p.Processors {
		out, err := proc.Configure(format)
		if err != nil {
			return fmt.Errorf("failed to configure processor %d: %w", i, err)
		}
		format = out
	}

	if err := p.Sink.Open(format); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer p.Sink.Close()

	chunk := p.ChunkDuration
	if chunk <= 0 {
		chunk = DefaultChunkDuration
	}
	frames := max(1, int(int64(format.SampleRate)*int64(chunk)/int64(time.Second)))
	buf := make([]byte, frames*format.BytesPerFrame)

	var ticker *time.Ticker
	if p.Realtime {
		ticker = time.NewTicker(chunk)
		defer ticker.Stop()
	}

	logger.Info("Pipeline starting",
		zap.Stringer("format", format),
		zap.Duration("chunk", chunk),
		zap.Bool("realtime", p.Realtime))

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				p.flush()
				logger.Info("Pipeline stopping")
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			p.flush()
			logger.Info("Pipeline stopping")
			return err
		}

		n, err := p.Source.Read(buf)
		if n > 0 {
			if werr := p.render(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			logger.Info("Source finished")
			return p.finish(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
	}
}

// render pushes one chunk through the chain and writes the result
func (p *Pipeline) render(data []byte) error {
	for _, proc := range p.Processors {
		if !proc.IsActive() {
			continue
		}
		proc.ProcessFrames(data)
		data = proc.DrainOutput()
	}

	if len(data) > 0 {
		if err := p.Sink.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if p.OnChunk != nil {
		p.OnChunk(len(data))
	}
	return nil
}

// finish signals end of stream down the chain and drains what is left
func (p *Pipeline) finish(ctx context.Context) error {
	for i, proc := range p.Processors {
		proc.SignalEndOfStream()
		for !proc.IsFinished() {
			if err := ctx.Err(); err != nil {
				return err
			}
			tail := proc.DrainOutput()
			if len(tail) == 0 && !proc.IsFinished() {
				break
			}
			for _, next := range p.Processors[i+1:] {
				if !next.IsActive() {
					continue
				}
				next.ProcessFrames(tail)
				tail = next.DrainOutput()
			}
			if len(tail) > 0 {
				if err := p.Sink.Write(tail); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
			}
		}
	}
	return nil
}

func (p *Pipeline) flush() {
	for _, proc := range p.Processors {
		proc.Flush()
	}
}
