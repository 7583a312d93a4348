// ABOUTME: Stream tap package for capturing live PCM without disturbing playback
// ABOUTME: Provides Tap, a pipeline processor with arm/disarm capture control
// Package tap provides an in-line audio processor that records what it passes.
//
// A Tap sits in the host render chain. Every chunk handed to ProcessFrames is
// returned unmodified by DrainOutput; while a capture is armed the same bytes
// are also appended to a WAV container.
//
// Example:
//
//	t := tap.New(tap.Options{Dir: "captures"})
//	t.Configure(audio.NewPCM16Format(44100, 2))
//	id, _ := t.ArmCapture()
//	t.ProcessFrames(chunk)
//	out := t.DrainOutput()
//	rec, _ := t.DisarmCapture()
package tap
