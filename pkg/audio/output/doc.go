// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface with Oto and Discard implementations
// Package output provides audio sinks for the recording pipeline.
//
// Oto plays through the system audio device; Discard drops audio and is
// used for headless capture.
//
// Example:
//
//	out := output.NewOto(logger)
//	err := out.Open(audio.NewPCM16Format(48000, 2))
//	err = out.Write(pcm)
package output
