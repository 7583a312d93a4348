// ABOUTME: Block codec device and muxer capability interfaces
// ABOUTME: Narrow slot-based contract the transcode driver depends on
package codec

import (
	"fmt"
	"time"
)

// Status is the non-error outcome of a dequeue call
type Status int

const (
	// StatusOK means a slot index was returned
	StatusOK Status = iota
	// StatusWouldBlock means no slot became ready within the timeout
	StatusWouldBlock
	// StatusFormatChanged means OutputFormat has a new value; no slot returned
	StatusFormatChanged
	// StatusNoOutput means the call produced nothing but may be retried at once
	StatusNoOutput
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWouldBlock:
		return "would-block"
	case StatusFormatChanged:
		return "format-changed"
	case StatusNoOutput:
		return "no-output"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Flags annotate input and output buffers
type Flags uint32

const (
	// FlagEndOfStream marks the final input or output buffer
	FlagEndOfStream Flags = 1 << iota
	// FlagCodecConfig marks an output buffer holding codec setup data
	FlagCodecConfig
)

// Has reports whether all bits of f2 are set
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// MimeOpus is the only target the bundled device encodes
const MimeOpus = "audio/opus"

// Target is the compressed format requested from a device. SampleRate and
// Channels also describe the 16-bit PCM fed to the device.
type Target struct {
	MimeType   string
	SampleRate int
	Channels   int
	Bitrate    int // bits/s, 0 for codec default
}

// OutputFormat is the format reported by a device after StatusFormatChanged
type OutputFormat struct {
	MimeType   string
	SampleRate int // clock rate of output timestamps
	InputRate  int // PCM rate the stream was encoded from
	Channels   int
	PreSkip    int // samples at SampleRate to discard at decode start
}

// BufferInfo describes a filled output slot
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              Flags
}

// Device is a block encoder with indexed input and output slots. Input
// slots are filled and returned by FillInput; output slots are read and
// returned by ReleaseOutput.
type Device interface {
	Configure(target Target) error
	Start() error
	// InputCapacity is the size in bytes of one input slot
	InputCapacity() int
	DequeueInput(timeout time.Duration) (int, Status, error)
	FillInput(index int, data []byte, ptsUs int64, flags Flags) error
	DequeueOutput(timeout time.Duration) (int, BufferInfo, Status, error)
	OutputFormat() OutputFormat
	ReadOutput(index int) ([]byte, error)
	ReleaseOutput(index int) error
	Release() error
}

// Muxer writes encoded samples into a container. AddTrack must be called
// before Start, and Start before the first WriteSample.
type Muxer interface {
	AddTrack(format OutputFormat) (int, error)
	Start() error
	WriteSample(track int, data []byte, info BufferInfo) error
	Close() error
}
