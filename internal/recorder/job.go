// ABOUTME: Asynchronous transcode job handle
// ABOUTME: Exposes progress as a channel and the result through Wait
package recorder

import (
	"context"
	"sync"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/codec"
)

// Codec selects the transcode backend
type Codec string

const (
	CodecOpus   Codec = "opus"
	CodecVorbis Codec = "vorbis"
	CodecWAV    Codec = "wav"
)

// EncodeJob is a one-shot transcode request
type EncodeJob struct {
	Source      string
	Destination string // derived from Source when empty
	Codec       Codec
	Bitrate     int     // opus, bits/s
	Quality     float64 // vorbis, (0, 1]
	Trim        *codec.Trim
}

// Job tracks a submitted EncodeJob
type Job struct {
	ID  string
	Req EncodeJob

	progress chan float64
	done     chan struct{}

	mu       sync.Mutex
	last     float64
	record   audio.Record
	err      error
	finished bool
}

func newJob(id string, req EncodeJob) *Job {
	return &Job{
		ID:       id,
		Req:      req,
		progress: make(chan float64, 16),
		done:     make(chan struct{}),
	}
}

// Progress delivers percentages in [0, 100]. When the reader falls behind the
// oldest buffered values are dropped, so the newest value is always kept; the
// channel is closed when the job ends.
func (j *Job) Progress() <-chan float64 { return j.progress }

// Done is closed when the job ends
func (j *Job) Done() <-chan struct{} { return j.done }

// LastProgress returns the most recent percentage
func (j *Job) LastProgress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Wait blocks until the job ends or ctx is done
func (j *Job) Wait(ctx context.Context) (audio.Record, error) {
	select {
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.record, j.err
	case <-ctx.Done():
		return audio.Record{}, ctx.Err()
	}
}

func (j *Job) report(pct float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	j.last = pct

	for {
		select {
		case j.progress <- pct:
			return
		default:
		}
		select {
		case <-j.progress:
		default:
		}
	}
}

func (j *Job) finish(rec audio.Record, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	j.finished = true
	j.record = rec
	j.err = err
	close(j.progress)
	close(j.done)
}
