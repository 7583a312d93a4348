// ABOUTME: Lossless PCM "encoder" that writes 16-bit WAV
// ABOUTME: Used for trim-only extraction where no compression is wanted
package encode

import (
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/wav"
)

// PCM writes the samples unchanged into a WAV container. Quality is ignored.
type PCM struct{}

// Extension returns ".wav"
func (PCM) Extension() string { return ".wav" }

// Open creates the destination container
func (PCM) Open(path string, info Info) (Encoder, error) {
	w, err := wav.Create(path, wav.Options{})
	if err != nil {
		return nil, err
	}
	if err := w.WriteHeader(audio.NewPCM16Format(info.SampleRate, info.Channels)); err != nil {
		w.Abort()
		return nil, err
	}
	return &PCMEncoder{writer: w}, nil
}

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	writer *wav.Writer
	buf    []byte
}

// WriteFrames appends samples as little-endian 16-bit PCM
func (e *PCMEncoder) WriteFrames(samples []int16, offset, count int) error {
	if err := checkRange(samples, offset, count); err != nil {
		return err
	}
	if cap(e.buf) < count*2 {
		e.buf = make([]byte, count*2)
	}
	n := audio.Int16ToBytesLE(e.buf[:count*2], samples[offset:offset+count])
	return e.writer.Append(e.buf[:n])
}

// Close finalizes the container
func (e *PCMEncoder) Close() error {
	_, err := e.writer.Finalize()
	return err
}
