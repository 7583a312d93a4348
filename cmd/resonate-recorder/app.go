// ABOUTME: Wires configuration into taps, recorders, sources and sinks
// ABOUTME: Shared by the record, serve and transcode commands
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/archive"
	"github.com/Resonate-Protocol/resonate-recorder/internal/config"
	"github.com/Resonate-Protocol/resonate-recorder/internal/metrics"
	"github.com/Resonate-Protocol/resonate-recorder/internal/pipeline"
	"github.com/Resonate-Protocol/resonate-recorder/internal/recorder"
	"github.com/Resonate-Protocol/resonate-recorder/internal/source"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/tap"
	"go.uber.org/zap"
)

// app bundles the long-lived components of one process
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tap      *tap.Tap
	recorder *recorder.Recorder
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	m := metrics.New()
	tp := tap.New(tap.Options{
		Dir:       cfg.Capture.Dir,
		Prefix:    cfg.Capture.Prefix,
		BatchSize: cfg.Capture.BatchSize,
		Logger:    logger,
	})

	opts := recorder.Options{
		Workers:   cfg.Transcode.Workers,
		QueueSize: cfg.Transcode.QueueSize,
		Vorbis:    encode.FFmpegVorbis{Binary: cfg.Transcode.FFmpeg},
		Quality:   cfg.Transcode.Quality,
		Bitrate:   cfg.Transcode.Bitrate,
		Metrics:   m,
		Logger:    logger,
	}

	if cfg.Archive.Enabled {
		up, err := archive.New(ctx, archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			UsePathStyle:    cfg.Archive.UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive: %w", err)
		}
		opts.Archive = up
		opts.ArchiveCaptures = cfg.Archive.Captures
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		tap:      tp,
		recorder: recorder.New(tp, opts),
	}, nil
}

// encodeJob is the configured default transcode of a finished capture
func (a *app) encodeJob() recorder.EncodeJob {
	return recorder.EncodeJob{
		Codec:   recorder.Codec(a.cfg.Transcode.Codec),
		Bitrate: a.cfg.Transcode.Bitrate,
		Quality: a.cfg.Transcode.Quality,
	}
}

// stopCapture finalizes the capture, queueing a transcode when requested
func (a *app) stopCapture(ctx context.Context, transcode bool) error {
	if !transcode {
		_, err := a.recorder.StopCapture()
		return err
	}
	_, err := a.recorder.StopAndTranscode(ctx, a.encodeJob())
	return err
}

func (a *app) openSource() (source.Source, error) {
	if a.cfg.Playback.Source == "" {
		return source.NewTone(source.ToneOptions{Frequency: a.cfg.Playback.ToneHz}), nil
	}
	return source.New(a.cfg.Playback.Source, source.Options{
		Loop:   a.cfg.Playback.Loop,
		FFmpeg: a.cfg.Transcode.FFmpeg,
		Logger: a.logger,
	})
}

func (a *app) openOutput() output.Output {
	if a.cfg.Playback.Output == "none" {
		return output.NewDiscard()
	}
	o := output.NewOto(a.logger)
	o.SetVolume(a.cfg.Playback.Volume)
	return o
}

// newPipeline renders src through the tap to sink
func (a *app) newPipeline(src source.Source, sink output.Output, onChunk func(int)) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Source:        src,
		Processors:    []pipeline.Processor{a.tap},
		Sink:          sink,
		ChunkDuration: time.Duration(a.cfg.Playback.ChunkMs) * time.Millisecond,
		Realtime:      a.cfg.Playback.Realtime,
		OnChunk: func(n int) {
			a.metrics.PipelineBytes.Add(float64(n))
			a.metrics.PipelineChunks.Inc()
			if onChunk != nil {
				onChunk(n)
			}
		},
		Logger: a.logger,
	}
}

// close drains transcodes, bounded by timeout, and finalizes any capture
func (a *app) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.recorder.Close(ctx); err != nil {
		a.logger.Warn("Recorder shutdown incomplete", zap.Error(err))
	}
}
