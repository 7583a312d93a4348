// Package source opens the live audio fed through the recording pipeline.
//
// Sources always produce interleaved little-endian 16-bit PCM: MP3 and FLAC
// files, earlier WAV captures, HTTP MP3 streams, anything ffmpeg can decode,
// and a sine test tone.
package source
