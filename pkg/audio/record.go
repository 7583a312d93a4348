// ABOUTME: Record value returned by capture and transcode operations
// ABOUTME: Describes the captured container and optional compressed output
package audio

import "time"

// Record describes a finished capture and, after a transcode, its compressed output
type Record struct {
	ID             string
	SourcePath     string
	SampleRate     int
	BytesPerFrame  int
	Channels       int
	BodyBytes      int64
	Bitrate        int     // compressed bitrate in bits/s, 0 if not applicable
	Quality        float64 // streaming encoder quality, 0 if not applicable
	CompressedPath string
}

// Duration returns the playback length of the captured body
func (r Record) Duration() time.Duration {
	if r.SampleRate <= 0 || r.BytesPerFrame <= 0 {
		return 0
	}
	frames := r.BodyBytes / int64(r.BytesPerFrame)
	return time.Duration(frames) * time.Second / time.Duration(r.SampleRate)
}

// Format returns the PCM format of the captured body
func (r Record) Format() Format {
	return Format{
		SampleRate:    r.SampleRate,
		Channels:      r.Channels,
		BytesPerFrame: r.BytesPerFrame,
		Encoding:      EncodingPCM16,
	}
}
