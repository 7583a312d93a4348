// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for the pipeline sink backends
package output

import "github.com/Resonate-Protocol/resonate-recorder/pkg/audio"

// Output represents an audio sink at the end of the pipeline
type Output interface {
	// Open initializes the output for a 16-bit PCM format
	Open(format audio.Format) error

	// Write outputs little-endian 16-bit PCM (blocks until written)
	Write(pcm []byte) error

	// Close releases output resources
	Close() error
}
