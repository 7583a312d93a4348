// ABOUTME: Streaming encoder package for converting captures to compressed files
// ABOUTME: Provides the Adapter feed loop plus Vorbis and lossless PCM encoders
// Package encode converts WAV captures with streaming perceptual encoders.
//
// The Adapter skips the container header, reinterprets the body as
// little-endian 16-bit samples and feeds them to an Encoder in fixed-size
// blocks, reporting progress as it goes.
//
// Supports: Vorbis (via ffmpeg), PCM/WAV
//
// Example:
//
//	a := &encode.Adapter{Factory: encode.FFmpegVorbis{}}
//	rec, err := a.Convert(ctx, "capture.wav", "", encode.Info{Channels: 2, SampleRate: 44100, Quality: 0.4}, nil)
package encode
