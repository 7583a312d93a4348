// ABOUTME: The serve command: run the render pipeline behind the control API
// ABOUTME: Captures and transcodes are driven over HTTP and reported on /events
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-recorder/internal/control"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder with its HTTP control API",
		RunE:  runServe,
	}

	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address (default :8927)")
	f.String("name", "", "Recorder name advertised over mDNS")
	f.Bool("no-mdns", false, "Disable mDNS advertisement")
	f.String("audio", "", "Audio file or URL. Default: test tone")
	f.String("output", "", "Playback output: oto or none")
	f.Int("volume", 100, "Playback volume (0-100)")
	f.Bool("loop", false, "Restart file sources at end of file")
	f.String("dir", "", "Capture directory")
	f.String("prefix", "", "Capture file name prefix")
	f.Int("bitrate", 0, "Default Opus bitrate in bits/s")
	f.Float64("quality", 0, "Default Vorbis quality (0-1]")
	f.String("ffmpeg", "", "ffmpeg executable")
	f.Bool("archive", false, "Upload transcoded files to S3")
	f.String("bucket", "", "S3 bucket for --archive")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, cleanup, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(drainTimeout)

	src, err := a.openSource()
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()
	if _, err := a.tap.Configure(src.Format()); err != nil {
		return fmt.Errorf("failed to configure capture: %w", err)
	}

	srv := control.New(control.Config{
		Addr:       cfg.Server.Addr,
		Name:       cfg.Server.Name,
		EnableMDNS: cfg.Server.MDNS,
		Logger:     logger,
	}, a.recorder, a.metrics)

	go func() {
		p := a.newPipeline(src, a.openOutput(), nil)
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Pipeline stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		srv.Stop()
	}()

	logger.Info("Starting recorder", zap.String("name", cfg.Server.Name), zap.String("addr", cfg.Server.Addr))
	if err := srv.Start(); err != nil {
		return err
	}
	stop()
	return nil
}
