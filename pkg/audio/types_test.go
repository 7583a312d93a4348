// ABOUTME: Tests for audio types
// ABOUTME: Tests format validation, record math and sample conversion functions
package audio

import (
	"errors"
	"testing"
	"time"
)

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"pcm16 stereo", NewPCM16Format(44100, 2), false},
		{"pcm16 mono", NewPCM16Format(48000, 1), false},
		{"zero rate", NewPCM16Format(0, 2), true},
		{"zero channels", Format{SampleRate: 44100, BytesPerFrame: 4, Encoding: EncodingPCM16}, true},
		{"zero frame size", Format{SampleRate: 44100, Channels: 2, Encoding: EncodingPCM16}, true},
		{"invalid encoding", Format{SampleRate: 44100, Channels: 2, BytesPerFrame: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatDerivedFields(t *testing.T) {
	f := NewPCM16Format(44100, 2)

	if f.BytesPerFrame != 4 {
		t.Errorf("expected 4 bytes per frame, got %d", f.BytesPerFrame)
	}
	if f.ByteRate() != 176400 {
		t.Errorf("expected byte rate 176400, got %d", f.ByteRate())
	}
	if f.BitsPerSample() != 16 {
		t.Errorf("expected 16 bits per sample, got %d", f.BitsPerSample())
	}
	if f.String() != "44100Hz/2ch/pcm16" {
		t.Errorf("unexpected string %q", f.String())
	}
}

func TestRecordDuration(t *testing.T) {
	rec := Record{SampleRate: 44100, BytesPerFrame: 4, Channels: 2, BodyBytes: 176400}
	if rec.Duration() != time.Second {
		t.Errorf("expected 1s, got %v", rec.Duration())
	}

	if (Record{}).Duration() != 0 {
		t.Error("expected zero duration for empty record")
	}
}

func TestIOError(t *testing.T) {
	cause := errors.New("disk full")
	err := IOError(cause)

	if !errors.Is(err, ErrIO) {
		t.Error("expected error to match ErrIO")
	}
	if !errors.Is(err, cause) {
		t.Error("expected error to keep its cause")
	}
	if IOError(nil) != nil {
		t.Error("expected nil for nil cause")
	}
}

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected int32
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"negative", -100, -100 << 8},
		{"max", 32767, 32767 << 8},
		{"min", -32768, -32768 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFromInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSampleToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected int16
	}{
		{"zero", 0, 0},
		{"positive", 100 << 8, 100},
		{"negative", -100 << 8, -100},
		{"24bit positive", 1000000, 3906}, // 1000000 >> 8 = 3906
		{"24bit negative", -1000000, -3907},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleToInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestBytesToInt16LE(t *testing.T) {
	src := []byte{0x01, 0x00, 0xFF, 0x7F, 0x00, 0x80, 0xFF, 0xFF, 0xAA}
	dst := make([]int16, 8)

	n := BytesToInt16LE(dst, src)
	if n != 4 {
		t.Fatalf("expected 4 samples, got %d", n)
	}

	want := []int16{1, 32767, -32768, -1}
	for i, w := range want {
		if dst[i] != w {
			t.Errorf("sample %d: got %d, want %d", i, dst[i], w)
		}
	}
}

func TestInt16RoundTripLE(t *testing.T) {
	samples := []int16{0, 100, -100, 1000, -1000, 32767, -32768}
	buf := make([]byte, len(samples)*2)

	if n := Int16ToBytesLE(buf, samples); n != len(buf) {
		t.Fatalf("expected %d bytes, got %d", len(buf), n)
	}

	out := make([]int16, len(samples))
	BytesToInt16LE(out, buf)
	for i := range samples {
		if out[i] != samples[i] {
			t.Errorf("round-trip failed at %d: %d -> %d", i, samples[i], out[i])
		}
	}
}
