// ABOUTME: Tests for the streaming encoder adapter
// ABOUTME: Uses a recording encoder and the PCM encoder to verify feeding and trim
package encode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/wav"
)

type recordingFactory struct {
	openErr  error
	writeErr error
	enc      *recordingEncoder
	opened   string
}

func (f *recordingFactory) Extension() string { return ".rec" }

func (f *recordingFactory) Open(path string, info Info) (Encoder, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = path
	f.enc = &recordingEncoder{writeErr: f.writeErr}
	return f.enc, nil
}

type recordingEncoder struct {
	writeErr error
	samples  []int16
	calls    int
	closed   int
}

func (e *recordingEncoder) WriteFrames(samples []int16, offset, count int) error {
	if e.writeErr != nil {
		return e.writeErr
	}
	e.calls++
	e.samples = append(e.samples, samples[offset:offset+count]...)
	return nil
}

func (e *recordingEncoder) Close() error {
	e.closed++
	return nil
}

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) add(v float64) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) check(t *testing.T) {
	t.Helper()
	if len(p.values) == 0 {
		t.Fatal("no progress delivered")
	}
	for i := 1; i < len(p.values); i++ {
		if p.values[i] < p.values[i-1] {
			t.Errorf("progress not monotonic: %v", p.values)
		}
	}
	if last := p.values[len(p.values)-1]; last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
}

func writeCapture(t *testing.T, format audio.Format, samples []int16) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.wav")
	w, err := wav.Create(path, wav.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteHeader(format); err != nil {
		t.Fatal(err)
	}
	body := make([]byte, len(samples)*2)
	audio.Int16ToBytesLE(body, samples)
	if err := w.Append(body); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	return path
}

func rampSamples(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i - n/2)
	}
	return s
}

func TestInfoValidate(t *testing.T) {
	tests := []struct {
		name    string
		info    Info
		wantErr bool
	}{
		{"default", DefaultInfo(), false},
		{"quality one", Info{Channels: 2, SampleRate: 48000, Quality: 1}, false},
		{"zero rate", Info{Channels: 1, SampleRate: 0, Quality: 0.4}, true},
		{"negative channels", Info{Channels: -1, SampleRate: 44100, Quality: 0.4}, true},
		{"quality too high", Info{Channels: 1, SampleRate: 44100, Quality: 1.5}, true},
		{"quality zero", Info{Channels: 1, SampleRate: 44100, Quality: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, audio.ErrInvalidEncoderParameters) {
				t.Errorf("Validate() error = %v, want ErrInvalidEncoderParameters", err)
			}
		})
	}
}

func TestConvertRejectsBadParamsBeforeTouchingFiles(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.ogg")
	a := &Adapter{Factory: FFmpegVorbis{}}

	bad := []Info{
		{Channels: 1, SampleRate: 0, Quality: 0.4},
		{Channels: -1, SampleRate: 44100, Quality: 0.4},
		{Channels: 1, SampleRate: 44100, Quality: 1.5},
	}
	for _, info := range bad {
		_, err := a.Convert(context.Background(), filepath.Join(dir, "missing.wav"), dst, info, nil)
		if !errors.Is(err, audio.ErrInvalidEncoderParameters) {
			t.Errorf("Convert(%+v) error = %v, want ErrInvalidEncoderParameters", info, err)
		}
		if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
			t.Fatalf("output file created for %+v", info)
		}
	}
}

func TestConvertWholeFile(t *testing.T) {
	samples := rampSamples(3000)
	src := writeCapture(t, audio.NewPCM16Format(8000, 1), samples)
	f := &recordingFactory{}
	prog := &progressLog{}

	a := &Adapter{Factory: f}
	rec, err := a.Convert(context.Background(), src, "", Info{Channels: 1, SampleRate: 8000, Quality: 0.5}, prog.add)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if want := strings.TrimSuffix(src, ".wav") + ".rec"; f.opened != want || rec.CompressedPath != want {
		t.Errorf("destination = %q / %q, want %q", f.opened, rec.CompressedPath, want)
	}
	if len(f.enc.samples) != len(samples) {
		t.Fatalf("encoded %d samples, want %d", len(f.enc.samples), len(samples))
	}
	for i := range samples {
		if f.enc.samples[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, f.enc.samples[i], samples[i])
		}
	}
	// 6000 bytes in 1024-byte blocks
	if f.enc.calls != 6 {
		t.Errorf("WriteFrames called %d times, want 6", f.enc.calls)
	}
	if f.enc.closed != 1 {
		t.Errorf("encoder closed %d times, want 1", f.enc.closed)
	}
	if rec.SourcePath != src || rec.SampleRate != 8000 || rec.Channels != 1 || rec.Quality != 0.5 || rec.BodyBytes != 6000 {
		t.Errorf("unexpected record %+v", rec)
	}
	prog.check(t)
}

func TestConvertTrim(t *testing.T) {
	samples := rampSamples(4000)
	src := writeCapture(t, audio.NewPCM16Format(1000, 2), samples)

	tests := []struct {
		name      string
		trim      Trim
		wantStart int
		wantCount int
	}{
		{"no trim", Trim{Duration: 2, Start: 0, End: 0}, 0, 4000},
		{"half second each side", Trim{Duration: 2, Start: 0.5, End: 0.5}, 1000, 2000},
		{"start only", Trim{Duration: 100, Start: 25}, 1000, 3000},
		{"everything", Trim{Duration: 1, Start: 0.5, End: 0.5}, 2000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &recordingFactory{}
			prog := &progressLog{}
			a := &Adapter{Factory: f}

			_, err := a.ConvertTrim(context.Background(), src, filepath.Join(t.TempDir(), "out"),
				Info{Channels: 2, SampleRate: 1000, Quality: 0.4}, tt.trim, prog.add)
			if err != nil {
				t.Fatalf("ConvertTrim() error = %v", err)
			}

			if len(f.enc.samples) != tt.wantCount {
				t.Fatalf("encoded %d samples, want %d", len(f.enc.samples), tt.wantCount)
			}
			if tt.wantCount > 0 && f.enc.samples[0] != samples[tt.wantStart] {
				t.Errorf("first sample = %d, want %d", f.enc.samples[0], samples[tt.wantStart])
			}
			if f.enc.closed != 1 {
				t.Error("encoder not closed")
			}
			prog.check(t)
		})
	}
}

func TestConvertTrimInvalid(t *testing.T) {
	src := writeCapture(t, audio.NewPCM16Format(1000, 1), rampSamples(100))
	f := &recordingFactory{}
	a := &Adapter{Factory: f}

	_, err := a.ConvertTrim(context.Background(), src, "", DefaultInfo(), Trim{Duration: 1, Start: 0.8, End: 0.8}, nil)
	if err == nil {
		t.Fatal("expected error for overlapping trim")
	}
	if f.enc != nil {
		t.Error("encoder opened for invalid trim")
	}
}

func TestConvertClosesEncoderOnError(t *testing.T) {
	src := writeCapture(t, audio.NewPCM16Format(1000, 1), rampSamples(2000))
	f := &recordingFactory{writeErr: errors.New("encoder exploded")}
	prog := &progressLog{}

	_, err := (&Adapter{Factory: f}).Convert(context.Background(), src, "", DefaultInfo(), prog.add)
	if err == nil || !strings.Contains(err.Error(), "encoder exploded") {
		t.Fatalf("Convert() error = %v, want write failure", err)
	}
	if f.enc.closed != 1 {
		t.Errorf("encoder closed %d times, want 1", f.enc.closed)
	}
	for _, v := range prog.values {
		if v == 100 {
			t.Error("failed conversion reported 100")
		}
	}
}

func TestConvertCancelled(t *testing.T) {
	src := writeCapture(t, audio.NewPCM16Format(1000, 1), rampSamples(2000))
	f := &recordingFactory{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Adapter{Factory: f}).Convert(ctx, src, "", DefaultInfo(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Convert() error = %v, want context.Canceled", err)
	}
	if f.enc.closed != 1 {
		t.Error("encoder not closed after cancel")
	}
}

func TestConvertStream(t *testing.T) {
	samples := rampSamples(1500)
	src := writeCapture(t, audio.NewPCM16Format(1000, 1), samples)
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	f := &recordingFactory{}
	prog := &progressLog{}
	rec, err := (&Adapter{Factory: f, BlockSize: 256}).ConvertStream(context.Background(),
		bytes.NewReader(data), int64(len(data)), filepath.Join(t.TempDir(), "s.rec"), DefaultInfo(), prog.add)
	if err != nil {
		t.Fatalf("ConvertStream() error = %v", err)
	}
	if len(f.enc.samples) != len(samples) {
		t.Errorf("encoded %d samples, want %d", len(f.enc.samples), len(samples))
	}
	if rec.BodyBytes != 3000 {
		t.Errorf("BodyBytes = %d, want 3000", rec.BodyBytes)
	}
	prog.check(t)
}

func TestPCMEncoderRoundTrip(t *testing.T) {
	samples := rampSamples(5000)
	src := writeCapture(t, audio.NewPCM16Format(8000, 2), samples)
	dst := filepath.Join(t.TempDir(), "trimmed.wav")

	a := &Adapter{Factory: PCM{}}
	_, err := a.ConvertTrim(context.Background(), src, dst, Info{Channels: 2, SampleRate: 8000, Quality: 1},
		Trim{Duration: 10, Start: 1, End: 1}, nil)
	if err != nil {
		t.Fatalf("ConvertTrim() error = %v", err)
	}

	r, err := wav.OpenReader(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.Format() != audio.NewPCM16Format(8000, 2) {
		t.Errorf("format = %v", r.Format())
	}
	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	// 10000 bytes, 1000 trimmed from each side
	if len(body) != 8000 {
		t.Fatalf("body = %d bytes, want 8000", len(body))
	}
	got := make([]int16, len(body)/2)
	audio.BytesToInt16LE(got, body)
	for i := range got {
		if got[i] != samples[500+i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], samples[500+i])
		}
	}
}

func TestFFmpegVorbis(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	samples := rampSamples(44100 * 2)
	src := writeCapture(t, audio.NewPCM16Format(44100, 2), samples)
	prog := &progressLog{}

	rec, err := (&Adapter{Factory: FFmpegVorbis{}}).Convert(context.Background(), src, "",
		Info{Channels: 2, SampleRate: 44100, Quality: 0.4}, prog.add)
	if err != nil {
		if strings.Contains(err.Error(), "libvorbis") || strings.Contains(err.Error(), "Unknown encoder") {
			t.Skipf("ffmpeg built without libvorbis: %v", err)
		}
		t.Fatalf("Convert() error = %v", err)
	}

	data, err := os.ReadFile(rec.CompressedPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("OggS")) || !bytes.Contains(data, []byte("vorbis")) {
		t.Error("output is not an Ogg Vorbis stream")
	}
	prog.check(t)
}

func TestDestinationFor(t *testing.T) {
	tests := []struct {
		name string
		src  string
		dst  string
		ext  string
		want string
	}{
		{"explicit", "a.wav", "out.ogg", ".ogg", "out.ogg"},
		{"derived", "dir/a.wav", "", ".ogg", "dir/a.ogg"},
		{"same extension", "dir/a.wav", "", ".wav", "dir/a-out.wav"},
		{"no extension", "a", "", ".ogg", "a.ogg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DestinationFor(tt.src, tt.dst, tt.ext); got != tt.want {
				t.Errorf("DestinationFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertRefusesToOverwriteSource(t *testing.T) {
	src := writeCapture(t, audio.NewPCM16Format(8000, 1), rampSamples(800))
	a := &Adapter{Factory: PCM{}}
	_, err := a.Convert(context.Background(), src, src, Info{Channels: 1, SampleRate: 8000, Quality: 1}, nil)
	if err == nil {
		t.Fatal("expected error converting onto the source")
	}
}
