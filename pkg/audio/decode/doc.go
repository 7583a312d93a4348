// ABOUTME: Audio decoder package for reading back transcoded files
// ABOUTME: Provides the Opus packet decoder and an Ogg Opus file reader
// Package decode turns compressed outputs back into 16-bit PCM.
//
// Supports: Opus packets, Ogg Opus files
//
// Example:
//
//	r, err := decode.OpenOggOpus("capture.ogg")
//	pcm, err := io.ReadAll(r)
package decode
