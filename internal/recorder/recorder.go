// ABOUTME: Session control surface over the capture tap and transcoders
// ABOUTME: Starts and stops captures, runs transcodes on a worker pool, archives results
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/metrics"
	"github.com/Resonate-Protocol/resonate-recorder/internal/workerpool"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/codec"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/tap"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/wav"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrCaptureInProgress is returned when transcoding a file still being captured
	ErrCaptureInProgress = errors.New("capture still in progress")
	// ErrQueueFull is returned when the worker pool rejects a job
	ErrQueueFull = errors.New("transcode queue full")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("recorder closed")
	// ErrUnknownCodec is returned for codecs without a backend
	ErrUnknownCodec = errors.New("unknown codec")
)

// Archiver stores finished files remotely
type Archiver interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Options configures a Recorder
type Options struct {
	Workers   int // default 2
	QueueSize int // default 16

	Opus    codec.OpusOptions
	Vorbis  encode.Factory // default ffmpeg libvorbis
	Quality float64        // default vorbis quality
	Bitrate int            // default opus bitrate, 0 for codec default

	Archive Archiver
	// ArchiveCaptures uploads the source WAV next to the compressed file
	ArchiveCaptures bool

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Recorder owns one tap and the transcode workers
type Recorder struct {
	opts      Options
	tap       *tap.Tap
	pool      *workerpool.Pool
	logger    *zap.Logger
	listeners registry

	mu         sync.Mutex
	activeID   string
	activePath string
	armedAt    time.Time
	jobs       map[string]*Job
	closed     bool
}

// New creates a Recorder for tp
func New(tp *tap.Tap, opts Options) *Recorder {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.Vorbis == nil {
		opts.Vorbis = encode.FFmpegVorbis{}
	}
	if opts.Quality <= 0 {
		opts.Quality = encode.DefaultInfo().Quality
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Logger = logger
	if opts.Opus.Logger == nil {
		opts.Opus.Logger = logger
	}

	return &Recorder{
		opts:   opts,
		tap:    tp,
		pool:   workerpool.New(opts.Workers, opts.QueueSize, logger),
		logger: logger.Named("recorder"),
		jobs:   make(map[string]*Job),
	}
}

// Tap returns the underlying tap
func (r *Recorder) Tap() *tap.Tap { return r.tap }

// AddListener registers fn under tag, replacing any listener with that tag
func (r *Recorder) AddListener(tag string, fn Listener) {
	r.listeners.add(tag, fn)
}

// RemoveListener unregisters tag and reports whether it was present
func (r *Recorder) RemoveListener(tag string) bool {
	return r.listeners.remove(tag)
}

// StartCapture stops any running capture and arms a new one
func (r *Recorder) StartCapture() (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	active := r.activeID != ""
	r.mu.Unlock()

	if active {
		if _, err := r.StopCapture(); err != nil {
			r.logger.Warn("Failed to stop previous capture", zap.Error(err))
		}
	}

	id, err := r.tap.ArmCapture()
	if err != nil {
		r.countCaptureFailure()
		return "", fmt.Errorf("failed to start capture: %w", err)
	}
	path := r.tap.Stats().Path

	r.mu.Lock()
	r.activeID = id
	r.activePath = path
	r.armedAt = time.Now()
	r.mu.Unlock()

	if m := r.opts.Metrics; m != nil {
		m.CapturesStarted.Inc()
		m.ActiveCaptures.Inc()
	}
	r.listeners.broadcast(Event{Type: EventCaptureStarted, SessionID: id, Path: path})
	return id, nil
}

// StopCapture finalizes the running capture. It returns only after the
// container is complete on disk.
func (r *Recorder) StopCapture() (audio.Record, error) {
	rec, err := r.tap.DisarmCapture()

	r.mu.Lock()
	id := r.activeID
	wasActive := id != ""
	r.activeID = ""
	r.activePath = ""
	r.mu.Unlock()

	if m := r.opts.Metrics; m != nil && wasActive {
		m.ActiveCaptures.Dec()
	}
	if err != nil {
		if wasActive {
			r.countCaptureFailure()
		}
		return audio.Record{}, err
	}

	if m := r.opts.Metrics; m != nil {
		m.CapturesFinished.Inc()
		m.CaptureDuration.Observe(rec.Duration().Seconds())
	}
	r.listeners.broadcast(Event{Type: EventCaptureStopped, SessionID: rec.ID, Path: rec.SourcePath, Record: &rec})
	return rec, nil
}

// Transcode queues req on the worker pool. ctx bounds the job itself, not
// just the call.
func (r *Recorder) Transcode(ctx context.Context, req EncodeJob) (*Job, error) {
	switch req.Codec {
	case CodecOpus, CodecVorbis, CodecWAV:
	case "":
		req.Codec = CodecOpus
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, req.Codec)
	}
	if req.Source == "" {
		return nil, fmt.Errorf("transcode source required")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if r.activePath != "" && req.Source == r.activePath {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCaptureInProgress, req.Source)
	}
	job := newJob(uuid.New().String(), req)
	r.jobs[job.ID] = job
	r.mu.Unlock()

	if m := r.opts.Metrics; m != nil {
		m.QueuedJobs.Inc()
	}

	ok := r.pool.Submit(func() {
		start := time.Now()
		rec, err := r.run(ctx, job)
		r.complete(ctx, job, rec, err, time.Since(start))
	})
	if !ok {
		r.mu.Lock()
		delete(r.jobs, job.ID)
		r.mu.Unlock()
		if m := r.opts.Metrics; m != nil {
			m.QueuedJobs.Dec()
		}
		return nil, ErrQueueFull
	}

	r.logger.Info("Transcode queued",
		zap.String("job", job.ID), zap.String("source", req.Source), zap.String("codec", string(req.Codec)))
	return job, nil
}

// StopAndTranscode finalizes the running capture and queues its transcode
func (r *Recorder) StopAndTranscode(ctx context.Context, req EncodeJob) (*Job, error) {
	rec, err := r.StopCapture()
	if err != nil {
		return nil, err
	}
	req.Source = rec.SourcePath
	return r.Transcode(ctx, req)
}

// Job looks up a job by ID
func (r *Recorder) Job(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// JobStatus is a snapshot of one job
type JobStatus struct {
	ID       string
	Codec    Codec
	Source   string
	Progress float64
	Done     bool
	Output   string
	Error    string
}

// Status is a snapshot of the recorder
type Status struct {
	Capture  tap.Stats
	Duration time.Duration
	Jobs     []JobStatus
}

// Status returns the capture state and all known jobs
func (r *Recorder) Status() Status {
	st := Status{Capture: r.tap.Stats()}

	r.mu.Lock()
	if r.activeID != "" {
		st.Duration = time.Since(r.armedAt)
	}
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	for _, j := range jobs {
		js := JobStatus{ID: j.ID, Codec: j.Req.Codec, Source: j.Req.Source, Progress: j.LastProgress()}
		select {
		case <-j.Done():
			js.Done = true
			rec, err := j.Wait(context.Background())
			js.Output = rec.CompressedPath
			if err != nil {
				js.Error = err.Error()
			}
		default:
		}
		st.Jobs = append(st.Jobs, js)
	}
	sort.Slice(st.Jobs, func(i, k int) bool { return st.Jobs[i].ID < st.Jobs[k].ID })
	return st
}

// Close stops accepting jobs, waits for running ones within ctx and
// finalizes an armed capture.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	active := r.activeID != ""
	r.mu.Unlock()

	r.pool.StopAccepting()
	err := r.pool.Drain(ctx)

	if active {
		if _, serr := r.StopCapture(); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	return err
}

func (r *Recorder) run(ctx context.Context, job *Job) (audio.Record, error) {
	req := job.Req

	src, err := wav.OpenReader(req.Source)
	if err != nil {
		return audio.Record{}, err
	}
	format := src.Format()
	rec := audio.Record{
		ID:            job.ID,
		SourcePath:    req.Source,
		SampleRate:    format.SampleRate,
		BytesPerFrame: format.BytesPerFrame,
		Channels:      format.Channels,
		BodyBytes:     src.BodyBytes(),
	}
	src.Close()

	report := func(pct float64) {
		job.report(pct)
		r.listeners.broadcast(Event{Type: EventTranscodeProgress, JobID: job.ID, Path: req.Source, Progress: pct})
	}

	switch req.Codec {
	case CodecOpus:
		bitrate := req.Bitrate
		if bitrate == 0 {
			bitrate = r.opts.Bitrate
		}
		driver := &codec.Driver{
			NewDevice: func() (codec.Device, error) {
				return codec.NewOpusDevice(r.opts.Opus), nil
			},
			NewMuxer: func(path string) (codec.Muxer, error) {
				m, err := codec.NewOggMuxer(path)
				if err != nil {
					return nil, err
				}
				return m, nil
			},
			Extension: ".ogg",
			Logger:    r.opts.Logger,
		}
		dst, err := driver.Transcode(ctx, codec.Job{
			Source:      req.Source,
			Destination: req.Destination,
			Target:      codec.Target{MimeType: codec.MimeOpus, Bitrate: bitrate},
			Trim:        req.Trim,
			Progress:    report,
		})
		if err != nil {
			return rec, err
		}
		rec.Bitrate = bitrate
		rec.CompressedPath = dst
		return rec, nil

	default:
		factory := r.opts.Vorbis
		if req.Codec == CodecWAV {
			factory = encode.PCM{}
		}
		quality := req.Quality
		if quality == 0 {
			quality = r.opts.Quality
		}
		adapter := &encode.Adapter{Factory: factory, Logger: r.opts.Logger}
		info := encode.Info{Channels: format.Channels, SampleRate: format.SampleRate, Quality: quality}

		var out audio.Record
		if req.Trim != nil {
			trim := encode.Trim{Duration: 1, Start: req.Trim.Start, End: req.Trim.End}
			out, err = adapter.ConvertTrim(ctx, req.Source, req.Destination, info, trim, report)
		} else {
			out, err = adapter.Convert(ctx, req.Source, req.Destination, info, report)
		}
		if err != nil {
			return rec, err
		}
		rec.Quality = quality
		rec.CompressedPath = out.CompressedPath
		return rec, nil
	}
}

func (r *Recorder) complete(ctx context.Context, job *Job, rec audio.Record, err error, elapsed time.Duration) {
	codecName := string(job.Req.Codec)
	if m := r.opts.Metrics; m != nil {
		m.QueuedJobs.Dec()
		m.TranscodeDuration.WithLabelValues(codecName).Observe(elapsed.Seconds())
	}

	if err != nil {
		if m := r.opts.Metrics; m != nil {
			m.TranscodeJobs.WithLabelValues(codecName, "failed").Inc()
		}
		r.logger.Error("Transcode failed", zap.String("job", job.ID), zap.Error(err))
		job.finish(rec, err)
		r.listeners.broadcast(Event{Type: EventTranscodeFailed, JobID: job.ID, Path: job.Req.Source, Err: err})
		return
	}

	if m := r.opts.Metrics; m != nil {
		m.TranscodeJobs.WithLabelValues(codecName, "ok").Inc()
	}
	r.logger.Info("Transcode finished",
		zap.String("job", job.ID), zap.String("output", rec.CompressedPath), zap.Duration("elapsed", elapsed))
	job.finish(rec, nil)
	r.listeners.broadcast(Event{Type: EventTranscodeDone, JobID: job.ID, Path: rec.CompressedPath, Record: &rec})

	if r.opts.Archive == nil {
		return
	}
	paths := []string{rec.CompressedPath}
	if r.opts.ArchiveCaptures {
		paths = append(paths, rec.SourcePath)
	}
	for _, p := range paths {
		r.archive(ctx, job.ID, p)
	}
}

func (r *Recorder) archive(ctx context.Context, jobID, path string) {
	url, err := r.opts.Archive.Upload(ctx, path)
	if err != nil {
		if m := r.opts.Metrics; m != nil {
			m.ArchiveUploads.WithLabelValues("failed").Inc()
		}
		r.logger.Error("Archive upload failed", zap.String("path", path), zap.Error(err))
		return
	}
	if m := r.opts.Metrics; m != nil {
		m.ArchiveUploads.WithLabelValues("ok").Inc()
		if fi, err := os.Stat(path); err == nil {
			m.ArchiveBytes.Add(float64(fi.Size()))
		}
	}
	r.listeners.broadcast(Event{Type: EventArchived, JobID: jobID, Path: path, URL: url})
}

func (r *Recorder) countCaptureFailure() {
	if m := r.opts.Metrics; m != nil {
		m.CaptureFailures.Inc()
	}
}
