// ABOUTME: Output that drops audio after counting it
// ABOUTME: Used for headless capture and in tests
package output

import (
	"fmt"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
)

// Discard accepts any 16-bit PCM and throws it away
type Discard struct {
	format  audio.Format
	written atomic.Int64
	open    atomic.Bool
}

// NewDiscard creates a Discard output
func NewDiscard() *Discard {
	return &Discard{}
}

// Open records the format
func (d *Discard) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrUnsupportedFormat, err)
	}
	d.format = format
	d.open.Store(true)
	return nil
}

// Write counts the bytes
func (d *Discard) Write(pcm []byte) error {
	if !d.open.Load() {
		return fmt.Errorf("output not initialized")
	}
	d.written.Add(int64(len(pcm)))
	return nil
}

// Close marks the output closed
func (d *Discard) Close() error {
	d.open.Store(false)
	return nil
}

// BytesWritten returns the total bytes accepted
func (d *Discard) BytesWritten() int64 {
	return d.written.Load()
}
