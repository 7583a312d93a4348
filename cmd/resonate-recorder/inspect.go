// ABOUTME: The inspect command: print container details of a recording
// ABOUTME: WAV header fields, or Ogg Opus stream info with decoded length
package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/wav"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print details of a WAV or Ogg Opus recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()
			switch strings.ToLower(filepath.Ext(path)) {
			case ".ogg", ".opus":
				return inspectOpus(out, path)
			default:
				return inspectWAV(out, path)
			}
		},
	}
}

func inspectWAV(w io.Writer, path string) error {
	r, err := wav.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header
	format := r.Format()
	var duration time.Duration
	if format.SampleRate > 0 && format.BytesPerFrame > 0 {
		frames := r.BodyBytes() / int64(format.BytesPerFrame)
		duration = time.Duration(frames) * time.Second / time.Duration(format.SampleRate)
	}

	fmt.Fprintf(w, "File:            %s\n", path)
	fmt.Fprintf(w, "ChunkID:         %s\n", h.ChunkID[:])
	fmt.Fprintf(w, "ChunkSize:       %d\n", h.ChunkSize)
	fmt.Fprintf(w, "Format:          %s\n", h.Format[:])
	fmt.Fprintf(w, "AudioFormat:     %d\n", h.AudioFormat)
	fmt.Fprintf(w, "NumChannels:     %d\n", h.NumChannels)
	fmt.Fprintf(w, "SampleRate:      %d\n", h.SampleRate)
	fmt.Fprintf(w, "ByteRate:        %d\n", h.ByteRate)
	fmt.Fprintf(w, "BlockAlign:      %d\n", h.BlockAlign)
	fmt.Fprintf(w, "BitsPerSample:   %d\n", h.BitsPerSample)
	fmt.Fprintf(w, "Subchunk2Size:   %d\n", h.Subchunk2Size)
	fmt.Fprintf(w, "Body bytes:      %d\n", r.BodyBytes())
	fmt.Fprintf(w, "Duration:        %s\n", duration)
	if int64(h.Subchunk2Size) != r.BodyBytes() {
		fmt.Fprintf(w, "Warning:         header declares %d body bytes\n", h.Subchunk2Size)
	}
	return nil
}

func inspectOpus(w io.Writer, path string) error {
	d, err := decode.OpenOggOpus(path)
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := io.Copy(io.Discard, d)
	if err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	format := d.Format()
	frames := n / int64(format.BytesPerFrame)

	fmt.Fprintf(w, "File:            %s\n", path)
	fmt.Fprintf(w, "Codec:           opus\n")
	fmt.Fprintf(w, "Input rate:      %d\n", d.InputRate())
	fmt.Fprintf(w, "Channels:        %d\n", format.Channels)
	fmt.Fprintf(w, "Pre-skip:        %d\n", d.PreSkip())
	fmt.Fprintf(w, "Decoded frames:  %d\n", frames)
	fmt.Fprintf(w, "Duration:        %s\n", time.Duration(frames)*time.Second/time.Duration(format.SampleRate))
	return nil
}
