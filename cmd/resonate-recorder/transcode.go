// ABOUTME: The transcode command: compress an existing WAV capture
// ABOUTME: Runs one job on the recorder's worker pool and prints progress
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/codec"
	"github.com/spf13/cobra"
)

func newTranscodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcode <file.wav>",
		Short: "Transcode a WAV capture to Opus, Vorbis or trimmed WAV",
		Args:  cobra.ExactArgs(1),
		RunE:  runTranscode,
	}

	f := cmd.Flags()
	f.StringP("out", "o", "", "Destination file (default: source with the codec extension)")
	f.String("codec", "", "opus, vorbis or wav")
	f.Int("bitrate", 0, "Opus bitrate in bits/s")
	f.Float64("quality", 0, "Vorbis quality (0-1]")
	f.String("ffmpeg", "", "ffmpeg executable")
	f.Float64("trim-start", 0, "Fraction of the capture removed from the start")
	f.Float64("trim-end", 0, "Fraction of the capture removed from the end")
	f.Bool("archive", false, "Upload the result to S3")
	f.String("bucket", "", "S3 bucket for --archive")
	f.Bool("quiet", false, "Do not print progress")
	return cmd
}

func runTranscode(cmd *cobra.Command, args []string) error {
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

	req := a.encodeJob()
	req.Source = args[0]
	req.Destination, _ = cmd.Flags().GetString("out")
	trimStart, _ := cmd.Flags().GetFloat64("trim-start")
	trimEnd, _ := cmd.Flags().GetFloat64("trim-end")
	if trimStart != 0 || trimEnd != 0 {
		req.Trim = &codec.Trim{Start: trimStart, End: trimEnd}
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	job, err := a.recorder.Transcode(ctx, req)
	if err != nil {
		return err
	}

	for pct := range job.Progress() {
		if !quiet {
			fmt.Fprintf(os.Stderr, "\r%s %5.1f%%", req.Codec, pct)
		}
	}
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}

	rec, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("transcode failed: %w", err)
	}
	fmt.Printf("%s -> %s (%s)\n", rec.SourcePath, rec.CompressedPath, rec.Duration())
	return nil
}
