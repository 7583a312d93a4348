// ABOUTME: Progress reporting package for transcode jobs
// ABOUTME: Provides the Reporter used by the codec driver and encoder adapter
// Package progress decouples transcode feed loops from progress consumers.
//
// Example:
//
//	r := progress.New(func(pct float64) { fmt.Printf("\r%.0f%%", pct) })
//	r.Report(42)
//	r.Complete()
package progress
