// ABOUTME: Test tone generator source
// ABOUTME: Generates a sine wave, endless or for a fixed duration
package source

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

// ToneOptions configure a Tone. Zero values mean 48kHz stereo 440Hz forever.
type ToneOptions struct {
	SampleRate int
	Channels   int
	Frequency  float64
	Duration   time.Duration
}

// Tone generates a sine wave at 50% volume
type Tone struct {
	mu          sync.Mutex
	format      audio.Format
	frequency   float64
	sampleIndex uint64
	limit       uint64 // frames, 0 for endless
}

// NewTone creates a test tone generator
func NewTone(opts ToneOptions) *Tone {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	if opts.Frequency <= 0 {
		opts.Frequency = 440.0 // A4 note
	}

	t := &Tone{
		format:    audio.NewPCM16Format(opts.SampleRate, opts.Channels),
		frequency: opts.Frequency,
	}
	if opts.Duration > 0 {
		t.limit = uint64(opts.Duration.Seconds() * float64(opts.SampleRate))
	}
	return t
}

func (s *Tone) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bpf := s.format.BytesPerFrame
	frames := uint64(len(p) / bpf)
	if s.limit > 0 {
		if s.sampleIndex >= s.limit {
			return 0, io.EOF
		}
		frames = min(frames, s.limit-s.sampleIndex)
	}

	for i := uint64(0); i < frames; i++ {
		t := float64(s.sampleIndex+i) / float64(s.format.SampleRate)
		v := int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * 0.5)
		off := int(i) * bpf
		for ch := 0; ch < s.format.Channels; ch++ {
			p[off+ch*2] = byte(v)
			p[off+ch*2+1] = byte(v >> 8)
		}
	}

	s.sampleIndex += frames
	return int(frames) * bpf, nil
}

func (s *Tone) Format() audio.Format { return s.format }
func (s *Tone) Metadata() (string, string, string) {
	return "Test Tone", "Resonate Recorder", "Reference Implementation"
}
func (s *Tone) Close() error { return nil }
