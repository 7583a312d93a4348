// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Record, the error taxonomy and sample conversions
// Package audio provides the types shared by the capture and transcode pipeline.
//
// This package defines:
//   - Format: the PCM stream negotiated with the host pipeline
//   - Record: the result of a capture and, optionally, a transcode
//   - Sentinel errors for every failure class (ErrIO, ErrCodecTimeout, ...)
//
// Example:
//
//	format := audio.NewPCM16Format(44100, 2)
//	if err := format.Validate(); err != nil {
//	    return err
//	}
//	fmt.Println(format.ByteRate()) // 176400
package audio
