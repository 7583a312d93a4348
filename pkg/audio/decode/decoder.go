// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for packet decoders used to verify transcodes
package decode

// Decoder decodes one compressed packet to interleaved 16-bit samples
type Decoder interface {
	// Decode converts one encoded packet to PCM samples
	Decode(data []byte) ([]int16, error)

	// Close releases decoder resources
	Close() error
}
