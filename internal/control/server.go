// ABOUTME: HTTP control server for a recorder
// ABOUTME: Capture and transcode endpoints, status, the event stream and metrics
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/discovery"
	"github.com/Resonate-Protocol/resonate-recorder/internal/metrics"
	"github.com/Resonate-Protocol/resonate-recorder/internal/protocol"
	"github.com/Resonate-Protocol/resonate-recorder/internal/recorder"
	"github.com/Resonate-Protocol/resonate-recorder/internal/version"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/codec"
	"go.uber.org/zap"
)

const listenerTag = "control"

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 16

// Config holds server configuration
type Config struct {
	Addr       string // default ":8927"
	Name       string
	EnableMDNS bool
	Logger     *zap.Logger
}

// Server exposes a Recorder over HTTP
type Server struct {
	config   Config
	recorder *recorder.Recorder
	metrics  *metrics.Metrics
	hub      *Hub
	mux      *http.ServeMux
	logger   *zap.Logger

	httpServer  *http.Server
	mdnsManager *discovery.Manager

	// jobCtx bounds transcodes started over HTTP; cancelled on shutdown
	jobCtx    context.Context
	jobCancel context.CancelFunc

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a server for rec. m may be nil.
func New(config Config, rec *recorder.Recorder, m *metrics.Metrics) *Server {
	if config.Addr == "" {
		config.Addr = ":8927"
	}
	if config.Name == "" {
		config.Name = version.Product
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    config,
		recorder:  rec,
		metrics:   m,
		mux:       http.NewServeMux(),
		logger:    logger.Named("control"),
		jobCtx:    ctx,
		jobCancel: cancel,
		stopChan:  make(chan struct{}),
	}
	s.hub = NewHub(s.hello, m, logger)

	s.mux.HandleFunc("POST /capture/start", s.handleStartCapture)
	s.mux.HandleFunc("POST /capture/stop", s.handleStopCapture)
	s.mux.HandleFunc("POST /transcode", s.handleTranscode)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleJob)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.Handle("GET /events", s.hub)
	if m != nil {
		s.mux.Handle("GET /metrics", m.Handler())
	}

	rec.AddListener(listenerTag, s.onEvent)
	return s
}

// Handler returns the instrumented route table
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

// Hub returns the event hub
func (s *Server) Hub() *Hub { return s.hub }

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	s.logger.Info("Server starting", zap.String("name", s.config.Name), zap.String("addr", s.config.Addr))

	if s.config.EnableMDNS {
		port, err := portOf(s.config.Addr)
		if err != nil {
			return err
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			Logger:      s.logger,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn("Failed to start mDNS advertisement", zap.Error(err))
		} else {
			s.logger.Info("mDNS advertisement started")
		}
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.logger.Info("Server shutting down")
	case err := <-errChan:
		s.logger.Error("HTTP server error", zap.Error(err))
		serverErr = err
	}

	s.recorder.RemoveListener(listenerTag)
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	s.hub.Close()
	s.jobCancel()
	s.logger.Info("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Server) hello() protocol.Message {
	return protocol.Message{
		Type: protocol.TypeHello,
		Payload: protocol.ServerHello{
			Name:    s.config.Name,
			Product: version.Product,
			Version: version.Version,
		},
	}
}

func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	id, err := s.recorder.StartCapture()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	st := s.recorder.Status().Capture
	writeJSON(w, http.StatusOK, protocol.CaptureStarted{SessionID: id, Path: st.Path})
}

// handleStopCapture finalizes the capture. A JSON body queues a transcode of it.
func (s *Server) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	req, hasBody, err := decodeTranscode(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if !hasBody {
		rec, err := s.recorder.StopCapture()
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, toRecord(rec))
		return
	}

	job, err := s.recorder.StopAndTranscode(s.jobCtx, toEncodeJob(req))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, protocol.JobResponse{JobID: job.ID})
}

func (s *Server) handleTranscode(w http.ResponseWriter, r *http.Request) {
	req, _, err := decodeTranscode(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Source == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("source required"))
		return
	}

	job, err := s.recorder.Transcode(s.jobCtx, toEncodeJob(req))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, protocol.JobResponse{JobID: job.ID})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, js := range s.recorder.Status().Jobs {
		if js.ID == id {
			writeJSON(w, http.StatusOK, toJobStatus(js))
			return
		}
	}
	s.writeError(w, http.StatusNotFound, fmt.Errorf("job %s not found", id))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.recorder.Status()
	out := protocol.Status{
		Version: version.Version,
		Capture: protocol.CaptureStatus{
			State:         st.Capture.State.String(),
			SessionID:     st.Capture.SessionID,
			Path:          st.Capture.Path,
			BytesCaptured: st.Capture.BytesCaptured,
			DurationMs:    st.Duration.Milliseconds(),
		},
		Jobs: make([]protocol.JobStatus, 0, len(st.Jobs)),
	}
	for _, js := range st.Jobs {
		out.Jobs = append(out.Jobs, toJobStatus(js))
	}
	writeJSON(w, http.StatusOK, out)
}

// onEvent translates recorder events for the hub
func (s *Server) onEvent(ev recorder.Event) {
	msg := protocol.Message{Type: string(ev.Type), Timestamp: time.Now().UTC()}

	switch ev.Type {
	case recorder.EventCaptureStarted:
		msg.Payload = protocol.CaptureStarted{SessionID: ev.SessionID, Path: ev.Path}
	case recorder.EventCaptureStopped, recorder.EventTranscodeDone:
		if ev.Record == nil {
			return
		}
		rec := toRecord(*ev.Record)
		if ev.Type == recorder.EventCaptureStopped {
			msg.Payload = rec
		} else {
			msg.Payload = protocol.TranscodeDone{JobID: ev.JobID, Record: rec}
		}
	case recorder.EventTranscodeProgress:
		msg.Payload = protocol.TranscodeProgress{JobID: ev.JobID, Progress: ev.Progress}
	case recorder.EventTranscodeFailed:
		errMsg := ""
		if ev.Err != nil {
			errMsg = ev.Err.Error()
		}
		msg.Payload = protocol.TranscodeFailed{JobID: ev.JobID, Error: errMsg}
	case recorder.EventArchived:
		msg.Payload = protocol.Archived{JobID: ev.JobID, Path: ev.Path, URL: ev.URL}
	default:
		return
	}

	s.hub.Broadcast(msg)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Int("code", code), zap.Error(err))
	}
	writeJSON(w, code, protocol.Error{Error: err.Error()})
}

// statusFor maps recorder errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, recorder.ErrUnknownCodec),
		errors.Is(err, audio.ErrInvalidEncoderParameters),
		errors.Is(err, audio.ErrUnsupportedTargetFormat):
		return http.StatusBadRequest
	case errors.Is(err, recorder.ErrCaptureInProgress):
		return http.StatusConflict
	case errors.Is(err, audio.ErrNotConfigured), errors.Is(err, audio.ErrNoActiveCapture):
		return http.StatusConflict
	case errors.Is(err, recorder.ErrQueueFull), errors.Is(err, recorder.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeTranscode(w http.ResponseWriter, r *http.Request) (protocol.TranscodeRequest, bool, error) {
	var req protocol.TranscodeRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, false, nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, false, fmt.Errorf("invalid request body: %w", err)
	}
	return req, true, nil
}

func toEncodeJob(req protocol.TranscodeRequest) recorder.EncodeJob {
	job := recorder.EncodeJob{
		Source:      req.Source,
		Destination: req.Destination,
		Codec:       recorder.Codec(req.Codec),
		Bitrate:     req.Bitrate,
		Quality:     req.Quality,
	}
	if req.Trim != nil {
		job.Trim = &codec.Trim{Start: req.Trim.Start, End: req.Trim.End}
	}
	return job
}

func toRecord(rec audio.Record) protocol.Record {
	return protocol.Record{
		ID:         rec.ID,
		SourcePath: rec.SourcePath,
		Format: protocol.AudioFormat{
			Codec:      "pcm",
			Channels:   rec.Channels,
			SampleRate: rec.SampleRate,
			BitDepth:   16,
		},
		BodyBytes:      rec.BodyBytes,
		DurationMs:     rec.Duration().Milliseconds(),
		Bitrate:        rec.Bitrate,
		Quality:        rec.Quality,
		CompressedPath: rec.CompressedPath,
	}
}

func toJobStatus(js recorder.JobStatus) protocol.JobStatus {
	return protocol.JobStatus{
		ID:       js.ID,
		Codec:    string(js.Codec),
		Source:   js.Source,
		Progress: js.Progress,
		Done:     js.Done,
		Output:   js.Output,
		Error:    js.Error,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
