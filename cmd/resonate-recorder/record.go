// ABOUTME: The record command: play a source through the tap and capture it
// ABOUTME: Captures are controlled from the TUI or by --capture and --duration
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/recorder"
	"github.com/Resonate-Protocol/resonate-recorder/internal/ui"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/tap"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const drainTimeout = 5 * time.Minute

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Play a source and capture it to WAV",
		Long: `Play an audio file, URL or test tone through the capture tap.
In the TUI press c to start a capture, s to stop it and t to stop and
transcode. Without the TUI use --capture and --duration.`,
		RunE: runRecord,
	}

	f := cmd.Flags()
	f.String("audio", "", "Audio file or URL (MP3, FLAC, WAV, Ogg Opus, HLS). Default: test tone")
	f.String("output", "", "Playback output: oto or none")
	f.Int("volume", 100, "Playback volume (0-100)")
	f.Bool("loop", false, "Restart file sources at end of file")
	f.String("dir", "", "Capture directory")
	f.String("prefix", "", "Capture file name prefix")
	f.String("codec", "", "Transcode codec: opus, vorbis or wav")
	f.Int("bitrate", 0, "Opus bitrate in bits/s")
	f.Float64("quality", 0, "Vorbis quality (0-1]")
	f.String("ffmpeg", "", "ffmpeg executable")
	f.Bool("transcode", false, "Transcode every capture when it stops")
	f.Bool("archive", false, "Upload transcoded files to S3")
	f.String("bucket", "", "S3 bucket for --archive")
	f.Bool("capture", false, "Start capturing immediately")
	f.Duration("duration", 0, "Stop capturing after this long")
	f.Bool("no-tui", false, "Disable TUI, stream logs instead")
	return cmd
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	captureNow, _ := cmd.Flags().GetBool("capture")
	duration, _ := cmd.Flags().GetDuration("duration")

	logger, cleanup, err := newLogger(cfg, !noTUI && cfg.Logging.File != "")
	if err != nil {
		return err
	}
	defer cleanup()
	if !noTUI && cfg.Logging.File == "" {
		// The TUI owns the terminal
		logger = zap.NewNop()
	}

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

	// Configure up front so a capture can be armed before the first chunk
	if _, err := a.tap.Configure(src.Format()); err != nil {
		return fmt.Errorf("failed to configure capture: %w", err)
	}

	sink := a.openOutput()
	transcode := cfg.Transcode.AutoTranscode

	var program *tea.Program
	if !noTUI {
		controls := ui.NewControls()
		program = ui.Run(controls, a.recorder.Status)
		a.recorder.AddListener("tui", ui.Listener(program))
		go handleControls(ctx, a, sink, controls, transcode, stop)
	} else {
		a.recorder.AddListener("log", logEvents(logger))
	}

	if captureNow {
		if _, err := a.recorder.StartCapture(); err != nil {
			return err
		}
		if duration > 0 {
			timer := time.AfterFunc(duration, func() {
				if err := a.stopCapture(ctx, transcode); err != nil {
					logger.Error("Failed to stop capture", zap.Error(err))
				}
				if noTUI {
					stop()
				}
			})
			defer timer.Stop()
		}
	}

	pipeErr := make(chan error, 1)
	go func() {
		var onChunk func(int)
		if program != nil {
			onChunk = func(int) { go program.Send(ui.ChunkMsg(1)) }
		}
		p := a.newPipeline(src, sink, onChunk)
		pipeErr <- p.Run(ctx)
		if program != nil {
			program.Quit()
		}
	}()

	if program != nil {
		title, artist, album := src.Metadata()
		format := src.Format()
		go program.Send(ui.SourceMsg{
			Name:       sourceName(cfg.Playback.Source),
			Title:      title,
			Artist:     artist,
			Album:      album,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
		})
		if _, err := program.Run(); err != nil {
			stop()
			return fmt.Errorf("TUI failed: %w", err)
		}
		stop()
	}

	err = <-pipeErr
	if a.tap.Stats().State == tap.StateArmed {
		if serr := a.stopCapture(context.Background(), transcode); serr != nil {
			logger.Error("Failed to stop capture", zap.Error(serr))
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// handleControls applies TUI key actions until ctx ends
func handleControls(ctx context.Context, a *app, sink output.Output, c *ui.Controls, transcode bool, quit func()) {
	oto, _ := sink.(*output.Oto)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Quit:
			quit()
			return
		case v := <-c.Volume:
			if oto != nil {
				oto.SetVolume(v.Volume)
				oto.SetMuted(v.Muted)
			}
		case action := <-c.Capture:
			var err error
			switch action {
			case ui.ActionStart:
				_, err = a.recorder.StartCapture()
			case ui.ActionStop:
				err = a.stopCapture(ctx, transcode)
			case ui.ActionStopAndTranscode:
				err = a.stopCapture(ctx, true)
			}
			if err != nil {
				a.logger.Warn("Capture action failed", zap.Error(err))
			}
		}
	}
}

// logEvents reports recorder events when no TUI is running
func logEvents(logger *zap.Logger) recorder.Listener {
	return func(ev recorder.Event) {
		switch ev.Type {
		case recorder.EventTranscodeProgress:
			logger.Debug("Transcode progress", zap.String("job", ev.JobID), zap.Float64("percent", ev.Progress))
		case recorder.EventTranscodeFailed:
			logger.Error("Transcode failed", zap.String("job", ev.JobID), zap.Error(ev.Err))
		default:
			logger.Info("Event",
				zap.String("type", string(ev.Type)),
				zap.String("session", ev.SessionID),
				zap.String("job", ev.JobID),
				zap.String("path", ev.Path),
				zap.String("url", ev.URL))
		}
	}
}

func sourceName(path string) string {
	if path == "" {
		return "Test tone"
	}
	return path
}
