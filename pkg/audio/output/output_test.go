// ABOUTME: Audio output tests
// ABOUTME: Verifies Output implementations and volume scaling
package output

import (
	"bytes"
	"testing"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

func TestImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
	var _ Output = (*Discard)(nil)
}

func TestNewOto(t *testing.T) {
	out := NewOto(nil)
	if out == nil {
		t.Fatal("NewOto returned nil")
	}
	if err := out.Write([]byte{0, 0}); err == nil {
		t.Error("expected error writing before Open")
	}
	if err := out.Open(audio.Format{SampleRate: 48000, Channels: 2, BytesPerFrame: 8, Encoding: audio.EncodingFloat32}); err == nil {
		t.Error("expected error opening float output")
	}
}

func TestDiscard(t *testing.T) {
	d := NewDiscard()
	if err := d.Write([]byte{1, 2}); err == nil {
		t.Error("expected error writing before Open")
	}
	if err := d.Open(audio.Format{}); err == nil {
		t.Error("expected error opening invalid format")
	}
	if err := d.Open(audio.NewPCM16Format(44100, 2)); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := d.Write(make([]byte, 100)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if got := d.BytesWritten(); got != 300 {
		t.Errorf("BytesWritten() = %d, want 300", got)
	}
	d.Close()
	if err := d.Write([]byte{1, 2}); err == nil {
		t.Error("expected error writing after Close")
	}
}

func TestApplyVolume(t *testing.T) {
	src := make([]byte, 6)
	audio.Int16ToBytesLE(src, []int16{1000, -1000, 32767})

	tests := []struct {
		name   string
		volume int
		muted  bool
		want   []int16
	}{
		{"full", 100, false, []int16{1000, -1000, 32767}},
		{"half", 50, false, []int16{500, -500, 16383}},
		{"zero", 0, false, []int16{0, 0, 0}},
		{"muted", 100, true, []int16{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, len(src))
			applyVolume(dst, src, tt.volume, tt.muted)

			want := make([]byte, len(src))
			audio.Int16ToBytesLE(want, tt.want)
			if !bytes.Equal(dst, want) {
				t.Errorf("applyVolume() = %v, want %v", dst, want)
			}
		})
	}
}
