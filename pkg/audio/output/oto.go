// ABOUTME: Oto-based audio output implementation
// ABOUTME: Handles PCM playback with software volume control using oto library
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	logger     *zap.Logger
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	format     audio.Format
	volume     int
	muted      bool
	ready      bool
	scratch    []byte
}

// NewOto creates a new Oto output
func NewOto(logger *zap.Logger) *Oto {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oto{
		logger: logger.Named("output"),
		volume: 100,
	}
}

// Open initializes the output device
func (o *Oto) Open(format audio.Format) error {
	if format.Encoding != audio.EncodingPCM16 {
		return fmt.Errorf("%w: oto only plays 16-bit PCM, got %s", audio.ErrUnsupportedFormat, format)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// If already initialized with same format, reuse the existing context
	if o.otoCtx != nil && o.format == format {
		o.logger.Info("Audio output already initialized with same format, reusing context")
		return nil
	}

	// oto only allows one context per process
	if o.otoCtx != nil {
		return fmt.Errorf("%w: cannot switch from %s to %s", audio.ErrFormatLocked, o.format, format)
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.format = format

	// Pipe feeds one persistent player
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.ready = true

	o.logger.Info("Audio output initialized", zap.Stringer("format", format))
	return nil
}

// Write outputs audio (blocks until written)
func (o *Oto) Write(pcm []byte) error {
	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return fmt.Errorf("output not initialized")
	}
	if cap(o.scratch) < len(pcm) {
		o.scratch = make([]byte, len(pcm))
	}
	out := o.scratch[:len(pcm)]
	applyVolume(out, pcm, o.volume, o.muted)
	w := o.pipeWriter
	o.mu.Unlock()

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
	}
	o.ready = false
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	o.volume = max(0, min(100, volume))
	o.mu.Unlock()
	o.logger.Info("Volume set", zap.Int("volume", volume))
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	o.logger.Info("Mute changed", zap.Bool("muted", muted))
}

// applyVolume scales 16-bit little-endian samples from src into dst
func applyVolume(dst, src []byte, volume int, muted bool) {
	if !muted && volume >= 100 {
		copy(dst, src)
		return
	}

	multiplier := getVolumeMultiplier(volume, muted)
	for i := 0; i+1 < len(src); i += 2 {
		s := int16(uint16(src[i]) | uint16(src[i+1])<<8)
		v := int16(float64(s) * multiplier)
		dst[i] = byte(v)
		dst[i+1] = byte(v >> 8)
	}
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
