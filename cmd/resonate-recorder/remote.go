// ABOUTME: The remote command: drive and follow a recorder over its API
// ABOUTME: status, start, stop and watch subcommands against --server
package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-recorder/internal/client"
	"github.com/Resonate-Protocol/resonate-recorder/internal/protocol"
	"github.com/spf13/cobra"
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Control a recorder running serve",
	}
	cmd.PersistentFlags().String("server", "localhost:8927", "Recorder address (host:port)")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print capture state and jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := remoteClient(cmd)
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			started, err := remoteClient(cmd).StartCapture(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, started)
		},
	})

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the capture, optionally transcoding it",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := remoteClient(cmd)
			codec, _ := cmd.Flags().GetString("codec")
			if codec == "" {
				rec, err := c.StopCapture(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			}

			req := protocol.TranscodeRequest{Codec: codec}
			req.Bitrate, _ = cmd.Flags().GetInt("bitrate")
			req.Quality, _ = cmd.Flags().GetFloat64("quality")
			job, err := c.StopAndTranscode(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	}
	stop.Flags().String("codec", "", "Transcode the capture with this codec")
	stop.Flags().Int("bitrate", 0, "Opus bitrate in bits/s")
	stop.Flags().Float64("quality", 0, "Vorbis quality (0-1]")
	cmd.AddCommand(stop)

	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print events until interrupted",
		RunE:  runWatch,
	})
	return cmd
}

func remoteClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("server")
	return client.NewClient(client.Config{ServerAddr: addr})
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := remoteClient(cmd)
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Close()

	hello := c.Server()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to %s (%s %s)\n", hello.Name, hello.Product, hello.Version)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Closed():
			return fmt.Errorf("connection closed")
		case ev := <-c.CaptureStarted:
			fmt.Fprintf(out, "capture started  %s\n", ev.Path)
		case ev := <-c.CaptureStopped:
			fmt.Fprintf(out, "capture stopped  %s (%dms)\n", ev.SourcePath, ev.DurationMs)
		case ev := <-c.Progress:
			fmt.Fprintf(out, "transcode %s  %5.1f%%\n", ev.JobID, ev.Progress)
		case ev := <-c.Done:
			fmt.Fprintf(out, "transcode %s  done %s\n", ev.JobID, ev.Record.CompressedPath)
		case ev := <-c.Failed:
			fmt.Fprintf(out, "transcode %s  failed: %s\n", ev.JobID, ev.Error)
		case ev := <-c.Archived:
			fmt.Fprintf(out, "archived %s -> %s\n", ev.Path, ev.URL)
		}
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
