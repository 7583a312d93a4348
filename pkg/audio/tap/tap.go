// ABOUTME: In-line pass-through audio node that forks PCM frames to disk
// ABOUTME: Implements the host pipeline processor contract plus capture control
package tap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/wav"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of the current capture session
type State int

const (
	StateIdle State = iota
	StateArmed
	StateFinalizing
	StateClosed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Tap
type Options struct {
	// Dir receives capture files (default: current directory)
	Dir string
	// Prefix is prepended to capture file names (default "capture")
	Prefix string
	// BatchSize is the container writer batch threshold
	BatchSize int

	Logger *zap.Logger
}

// Stats is a snapshot of the tap's capture state
type Stats struct {
	State         State
	SessionID     string
	Path          string
	BytesCaptured int64
}

type session struct {
	id     string
	path   string
	format audio.Format
	writer *wav.Writer
}

// emptyOutput is the drained sentinel
var emptyOutput = []byte{}

// Tap passes PCM frames through unchanged and, while a capture is armed,
// forks a copy of every frame to a container writer. ProcessFrames and the
// other host methods run on the render goroutine; capture control may be
// called from any goroutine.
type Tap struct {
	opts   Options
	logger *zap.Logger

	// ctl serializes ArmCapture and DisarmCapture
	ctl sync.Mutex

	mu         sync.Mutex
	format     audio.Format
	configured bool
	outBuf     []byte
	out        []byte
	eos        bool

	session *session
	state   State
	last    Stats
	forkErr error
}

// New creates an unconfigured Tap
func New(opts Options) *Tap {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Prefix == "" {
		opts.Prefix = "capture"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tap{
		opts:   opts,
		logger: logger.Named("tap"),
		out:    emptyOutput,
	}
}

// Configure accepts the host's stream format. Only PCM16 is supported.
// Reconfiguring while a capture is armed fails with audio.ErrFormatLocked.
func (t *Tap) Configure(format audio.Format) (audio.Format, error) {
	if format.Encoding != audio.EncodingPCM16 {
		return audio.Format{}, fmt.Errorf("%w: %s", audio.ErrUnsupportedFormat, format.Encoding)
	}
	if err := format.Validate(); err != nil {
		return audio.Format{}, fmt.Errorf("%w: %v", audio.ErrUnsupportedFormat, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil && format != t.format {
		return audio.Format{}, audio.ErrFormatLocked
	}

	t.format = format
	t.configured = true
	t.logger.Debug("Configured", zap.Stringer("format", format))
	return format, nil
}

// IsActive reports whether the tap has been configured
func (t *Tap) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.configured
}

// ProcessFrames forks in to the armed capture, if any, then queues the same
// bytes for DrainOutput. It always consumes the whole chunk.
func (t *Tap) ProcessFrames(in []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil && len(in) > 0 {
		if err := t.session.writer.Append(in); err != nil {
			t.abortLocked(err)
		}
	}

	if cap(t.outBuf) < len(in) {
		t.outBuf = make([]byte, len(in))
	}
	t.out = t.outBuf[:len(in)]
	copy(t.out, in)

	return len(in)
}

// DrainOutput returns the bytes queued by the last ProcessFrames. The slice
// aliases an internal buffer and is valid until the next ProcessFrames call.
// A second drain returns an empty slice.
func (t *Tap) DrainOutput() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.out
	t.out = emptyOutput
	return out
}

// SignalEndOfStream marks that no more input will arrive. It does not
// finalize an armed capture.
func (t *Tap) SignalEndOfStream() {
	t.mu.Lock()
	t.eos = true
	t.mu.Unlock()
}

// IsFinished reports whether end-of-stream was signaled and all output drained
func (t *Tap) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eos && len(t.out) == 0
}

// Flush drops pending output and clears end-of-stream. An armed capture keeps
// running.
func (t *Tap) Flush() {
	t.mu.Lock()
	t.out = emptyOutput
	t.eos = false
	t.mu.Unlock()
}

// Reset tears the tap down to its unconfigured state. An armed capture is
// finalized on a best-effort basis.
func (t *Tap) Reset() {
	t.mu.Lock()
	s := t.session
	t.session = nil
	t.configured = false
	t.format = audio.Format{}
	t.out = emptyOutput
	t.outBuf = nil
	t.eos = false
	t.forkErr = nil
	t.state = StateIdle
	t.mu.Unlock()

	if s == nil {
		return
	}
	if _, err := s.writer.Finalize(); err != nil {
		t.logger.Warn("Failed to finalize capture on reset",
			zap.String("session", s.id), zap.Error(err))
		return
	}
	t.logger.Info("Capture finalized on reset", zap.String("session", s.id), zap.String("path", s.path))
}

// ArmCapture finalizes any prior session, opens a new container for the
// current format and starts forking frames into it. Returns the session ID.
func (t *Tap) ArmCapture() (string, error) {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	if !t.configured {
		t.mu.Unlock()
		return "", audio.ErrNotConfigured
	}
	format := t.format
	t.mu.Unlock()

	if _, err := t.disarm(); err != nil && !errors.Is(err, audio.ErrNoActiveCapture) {
		t.logger.Warn("Failed to finalize previous capture", zap.Error(err))
	}

	id := uuid.New().String()
	path := filepath.Join(t.opts.Dir, fmt.Sprintf("%s-%s.wav", t.opts.Prefix, id))

	if err := os.MkdirAll(t.opts.Dir, 0o755); err != nil {
		return "", audio.IOError(fmt.Errorf("failed to create capture directory: %w", err))
	}

	w, err := wav.Create(path, wav.Options{BatchSize: t.opts.BatchSize})
	if err != nil {
		return "", err
	}
	if err := w.WriteHeader(format); err != nil {
		w.Abort()
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// The host may have reset or reconfigured while the file was opening
	if !t.configured || t.format != format {
		w.Abort()
		os.Remove(path)
		return "", audio.ErrNotConfigured
	}

	t.session = &session{id: id, path: path, format: format, writer: w}
	t.state = StateArmed
	t.forkErr = nil
	t.last = Stats{}

	t.logger.Info("Capture armed",
		zap.String("session", id), zap.String("path", path), zap.Stringer("format", format))
	return id, nil
}

// DisarmCapture stops forking, finalizes the container and returns its
// record. If the session was aborted by a write failure, that failure is
// returned instead.
func (t *Tap) DisarmCapture() (audio.Record, error) {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	return t.disarm()
}

func (t *Tap) disarm() (audio.Record, error) {
	t.mu.Lock()
	s := t.session
	if s == nil {
		err := t.forkErr
		t.forkErr = nil
		t.mu.Unlock()
		if err != nil {
			return audio.Record{}, err
		}
		return audio.Record{}, audio.ErrNoActiveCapture
	}
	t.session = nil
	t.state = StateFinalizing
	t.last = Stats{State: StateFinalizing, SessionID: s.id, Path: s.path, BytesCaptured: s.writer.BodyBytes()}
	t.mu.Unlock()

	path, err := s.writer.Finalize()

	t.mu.Lock()
	t.state = StateClosed
	t.last.State = StateClosed
	t.mu.Unlock()

	if err != nil {
		t.logger.Error("Failed to finalize capture", zap.String("session", s.id), zap.Error(err))
		return audio.Record{}, fmt.Errorf("failed to finalize capture %s: %w", s.id, err)
	}

	rec := audio.Record{
		ID:            s.id,
		SourcePath:    path,
		SampleRate:    s.format.SampleRate,
		BytesPerFrame: s.format.BytesPerFrame,
		Channels:      s.format.Channels,
		BodyBytes:     s.writer.BodyBytes(),
	}
	t.logger.Info("Capture finalized",
		zap.String("session", s.id), zap.String("path", path), zap.Int64("bytes", rec.BodyBytes))
	return rec, nil
}

// Stats returns a snapshot of the current or most recent session
func (t *Tap) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return Stats{
			State:         StateArmed,
			SessionID:     t.session.id,
			Path:          t.session.path,
			BytesCaptured: t.session.writer.BodyBytes(),
		}
	}
	st := t.last
	st.State = t.state
	return st
}

func (t *Tap) abortLocked(cause error) {
	s := t.session
	t.session = nil
	t.state = StateClosed
	t.last = Stats{State: StateClosed, SessionID: s.id, Path: s.path, BytesCaptured: s.writer.BodyBytes()}
	t.forkErr = fmt.Errorf("capture %s aborted: %w", s.id, cause)

	if err := s.writer.Abort(); err != nil {
		t.logger.Warn("Failed to release aborted capture", zap.String("session", s.id), zap.Error(err))
	}
	t.logger.Error("Capture aborted", zap.String("session", s.id), zap.Error(cause))
}
