// ABOUTME: Tests for the Opus device and Ogg muxer
// ABOUTME: Runs real captures through libopus and checks the Ogg output
package codec

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

func sineBody(format audio.Format, d time.Duration) []byte {
	frames := int(int64(format.SampleRate) * int64(d) / int64(time.Second))
	samples := make([]int16, frames*format.Channels)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(format.SampleRate)))
		for c := 0; c < format.Channels; c++ {
			samples[i*format.Channels+c] = v
		}
	}
	body := make([]byte, len(samples)*2)
	audio.Int16ToBytesLE(body, samples)
	return body
}

func TestOpusDeviceConfigure(t *testing.T) {
	tests := []struct {
		name        string
		target      Target
		wantErr     bool
		errContains string
	}{
		{"stereo 48k", Target{MimeType: MimeOpus, SampleRate: 48000, Channels: 2}, false, ""},
		{"mono 44.1k resampled", Target{SampleRate: 44100, Channels: 1, Bitrate: 64000}, false, ""},
		{"wrong mime", Target{MimeType: "audio/mp4a-latm", SampleRate: 48000, Channels: 2}, true, "mime"},
		{"too many channels", Target{SampleRate: 48000, Channels: 6}, true, "channels"},
		{"bitrate too low", Target{SampleRate: 48000, Channels: 2, Bitrate: 100}, true, "bitrate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewOpusDevice(OpusOptions{})
			defer dev.Release()

			err := dev.Configure(tt.target)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Configure() expected error, got nil")
				}
				if !bytes.Contains([]byte(err.Error()), []byte(tt.errContains)) {
					t.Errorf("Configure() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Configure() unexpected error = %v", err)
			}
			if (dev.resampler != nil) != (tt.target.SampleRate != 48000) {
				t.Errorf("resampler presence wrong for %d Hz", tt.target.SampleRate)
			}
		})
	}
}

func TestOpusDeviceAnnouncesFormatFirst(t *testing.T) {
	dev := NewOpusDevice(OpusOptions{})
	defer dev.Release()

	if err := dev.Configure(Target{SampleRate: 48000, Channels: 2}); err != nil {
		t.Fatal(err)
	}
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}

	idx, status, err := dev.DequeueInput(time.Second)
	if err != nil || status != StatusOK {
		t.Fatalf("DequeueInput() = %d, %v, %v", idx, status, err)
	}
	// 50ms of stereo audio: two full frames plus a partial one
	if err := dev.FillInput(idx, make([]byte, 9600), 0, 0); err != nil {
		t.Fatal(err)
	}

	_, _, status, err = dev.DequeueOutput(time.Second)
	if err != nil || status != StatusFormatChanged {
		t.Fatalf("first DequeueOutput() status = %v, err = %v, want format change", status, err)
	}
	if of := dev.OutputFormat(); of.MimeType != MimeOpus || of.Channels != 2 || of.SampleRate != 48000 {
		t.Errorf("unexpected output format %+v", of)
	}

	var packets int
	for {
		out, info, status, err := dev.DequeueOutput(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if status == StatusWouldBlock {
			break
		}
		if info.PresentationTimeUs != int64(packets)*20000 {
			t.Errorf("packet %d pts = %d", packets, info.PresentationTimeUs)
		}
		dev.ReleaseOutput(out)
		packets++
	}
	if packets != 2 {
		t.Errorf("expected 2 packets before end of stream, got %d", packets)
	}

	idx, _, _ = dev.DequeueInput(time.Second)
	if err := dev.FillInput(idx, nil, 50000, FlagEndOfStream); err != nil {
		t.Fatal(err)
	}
	out, info, status, err := dev.DequeueOutput(time.Second)
	if err != nil || status != StatusOK {
		t.Fatalf("DequeueOutput() = %v, %v", status, err)
	}
	if !info.Flags.Has(FlagEndOfStream) || info.Size == 0 {
		t.Errorf("expected padded final packet with end of stream, got %+v", info)
	}
	dev.ReleaseOutput(out)
}

func TestOpusDeviceReportsEncodeFailure(t *testing.T) {
	errEncode := errors.New("encoder exploded")

	newFailingDevice := func(t *testing.T) *OpusDevice {
		t.Helper()
		dev := NewOpusDevice(OpusOptions{})
		if err := dev.Configure(Target{SampleRate: 48000, Channels: 2}); err != nil {
			t.Fatal(err)
		}
		dev.encode = func([]int16, []byte) (int, error) { return 0, errEncode }
		return dev
	}

	t.Run("dequeue calls", func(t *testing.T) {
		dev := newFailingDevice(t)
		defer dev.Release()
		if err := dev.Start(); err != nil {
			t.Fatal(err)
		}

		idx, _, err := dev.DequeueInput(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if err := dev.FillInput(idx, make([]byte, 9600), 0, 0); err != nil {
			t.Fatal(err)
		}

		var outErr error
		for i := 0; i < 10 && outErr == nil; i++ {
			_, _, _, outErr = dev.DequeueOutput(100 * time.Millisecond)
		}
		if !errors.Is(outErr, errEncode) {
			t.Fatalf("DequeueOutput() error = %v, want encode failure", outErr)
		}
		if _, _, err := dev.DequeueInput(time.Millisecond); !errors.Is(err, errEncode) {
			t.Errorf("DequeueInput() error = %v, want encode failure", err)
		}
	})

	t.Run("transcode", func(t *testing.T) {
		format := audio.NewPCM16Format(48000, 2)
		src := writeCapture(t, format, sineBody(format, 200*time.Millisecond))
		driver := &Driver{
			NewDevice: func() (Device, error) { return newFailingDevice(t), nil },
			NewMuxer:  func(string) (Muxer, error) { return &fakeMuxer{}, nil },
			Timeout:   50 * time.Millisecond,
		}

		_, err := driver.Transcode(context.Background(), Job{Source: src})
		if !errors.Is(err, errEncode) {
			t.Fatalf("Transcode() error = %v, want encode failure", err)
		}
		if errors.Is(err, audio.ErrCodecTimeout) {
			t.Error("encode failure reported as a codec timeout")
		}
	})
}

func TestOpusOggTranscode(t *testing.T) {
	tests := []struct {
		name   string
		format audio.Format
	}{
		{"stereo 48k", audio.NewPCM16Format(48000, 2)},
		{"stereo 44.1k", audio.NewPCM16Format(44100, 2)},
		{"mono 16k", audio.NewPCM16Format(16000, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeCapture(t, tt.format, sineBody(tt.format, 1500*time.Millisecond))
			prog := &progressLog{}

			d := &Driver{
				NewDevice: func() (Device, error) { return NewOpusDevice(OpusOptions{}), nil },
				NewMuxer:  func(p string) (Muxer, error) { return NewOggMuxer(p) },
			}
			dst, err := d.Transcode(context.Background(), Job{
				Source:      src,
				Destination: filepath.Join(t.TempDir(), "out.ogg"),
				Target:      Target{MimeType: MimeOpus, Bitrate: 96000},
				Progress:    prog.add,
			})
			if err != nil {
				t.Fatalf("Transcode() error = %v", err)
			}

			data, err := os.ReadFile(dst)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.HasPrefix(data, []byte("OggS")) {
				t.Error("output is not an Ogg stream")
			}
			if !bytes.Contains(data, []byte("OpusHead")) {
				t.Error("output has no Opus identification header")
			}
			if len(data) < 1000 {
				t.Errorf("output suspiciously small: %d bytes", len(data))
			}
			if prog.values[len(prog.values)-1] != 100 {
				t.Errorf("final progress = %v, want 100", prog.values[len(prog.values)-1])
			}
		})
	}
}

func TestOggMuxerLifecycle(t *testing.T) {
	m, err := NewOggMuxer(filepath.Join(t.TempDir(), "sub", "x.ogg"))
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Start(); err == nil {
		t.Error("Start() before AddTrack should fail")
	}
	if _, err := m.AddTrack(OutputFormat{MimeType: "audio/aac"}); err == nil {
		t.Error("AddTrack() should reject non-Opus tracks")
	}
	if _, err := m.AddTrack(OutputFormat{MimeType: MimeOpus, SampleRate: 48000, Channels: 2}); err != nil {
		t.Fatalf("AddTrack() error = %v", err)
	}
	if _, err := m.AddTrack(OutputFormat{MimeType: MimeOpus, SampleRate: 48000, Channels: 2}); err == nil {
		t.Error("second AddTrack() should fail")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
