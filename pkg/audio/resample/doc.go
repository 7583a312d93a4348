// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts 16-bit PCM between sample rates for codecs with fixed rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling, one chunk at a time.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := make([]int16, r.OutputSamplesNeeded(len(in)))
//	n := r.Resample(in, out)
package resample
