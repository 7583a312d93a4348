// ABOUTME: Tests for the Opus decoder and Ogg Opus reader
// ABOUTME: Encodes with libopus, muxes with oggwriter and decodes back
package decode

import (
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

func TestNewOpus(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		wantErr bool
	}{
		{"stereo 48k", audio.NewPCM16Format(48000, 2), false},
		{"mono 48k", audio.NewPCM16Format(48000, 1), false},
		{"mono 16k", audio.NewPCM16Format(16000, 1), false},
		{"unsupported rate", audio.NewPCM16Format(44100, 2), true},
		{"float", audio.Format{SampleRate: 48000, Channels: 2, BytesPerFrame: 8, Encoding: audio.EncodingFloat32}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := NewOpus(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewOpus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				dec.Close()
			}
		})
	}
}

func encodeSine(t *testing.T, channels, frames int) [][]byte {
	t.Helper()
	enc, err := opus.NewEncoder(48000, channels, opus.AppAudio)
	if err != nil {
		t.Fatal(err)
	}

	const frameSize = 960
	pcm := make([]int16, frameSize*channels)
	out := make([]byte, 4000)
	var packets [][]byte
	for f := 0; f < frames; f++ {
		for i := 0; i < frameSize; i++ {
			v := int16(8000 * math.Sin(2*math.Pi*440*float64(f*frameSize+i)/48000))
			for c := 0; c < channels; c++ {
				pcm[i*channels+c] = v
			}
		}
		n, err := enc.Encode(pcm, out)
		if err != nil {
			t.Fatal(err)
		}
		packets = append(packets, append([]byte(nil), out[:n]...))
	}
	return packets
}

func TestOpusDecode(t *testing.T) {
	packets := encodeSine(t, 2, 3)
	dec, err := NewOpus(audio.NewPCM16Format(48000, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	for i, p := range packets {
		samples, err := dec.Decode(p)
		if err != nil {
			t.Fatalf("packet %d: Decode() error = %v", i, err)
		}
		if len(samples) != 960*2 {
			t.Errorf("packet %d: %d samples, want %d", i, len(samples), 960*2)
		}
	}

	if _, err := dec.Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestOggOpusRoundTrip(t *testing.T) {
	const frames = 50 // one second
	packets := encodeSine(t, 1, frames)
	path := filepath.Join(t.TempDir(), "tone.ogg")

	w, err := oggwriter.New(path, 48000, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range packets {
		err := w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: p,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenOggOpus(path)
	if err != nil {
		t.Fatalf("OpenOggOpus() error = %v", err)
	}
	defer r.Close()

	if r.Format() != audio.NewPCM16Format(48000, 1) {
		t.Errorf("Format() = %v", r.Format())
	}
	if r.InputRate() != 48000 {
		t.Errorf("InputRate() = %d, want 48000", r.InputRate())
	}

	pcm, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	got := len(pcm) / 2
	max := frames * 960
	if got == 0 || got > max {
		t.Errorf("decoded %d frames, want between 1 and %d", got, max)
	}
	if got < max-r.PreSkip()-960 {
		t.Errorf("decoded %d frames, want at least %d", got, max-r.PreSkip()-960)
	}
}

func TestOpenOggOpusErrors(t *testing.T) {
	_, err := OpenOggOpus(filepath.Join(t.TempDir(), "missing.ogg"))
	if !errors.Is(err, audio.ErrIO) {
		t.Errorf("OpenOggOpus(missing) error = %v, want ErrIO", err)
	}
}
