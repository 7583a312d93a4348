// ABOUTME: Control API and event stream message definitions
// ABOUTME: JSON structs exchanged over HTTP and the websocket event hub
package protocol

import "time"

// Message is the top-level wrapper for all event stream messages
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Event stream message types
const (
	TypeHello             = "server/hello"
	TypeCaptureStarted    = "capture/started"
	TypeCaptureStopped    = "capture/stopped"
	TypeTranscodeProgress = "transcode/progress"
	TypeTranscodeDone     = "transcode/done"
	TypeTranscodeFailed   = "transcode/failed"
	TypeArchived          = "archive/uploaded"
)

// ServerHello is the first message on every event stream
type ServerHello struct {
	Name    string `json:"name"`
	Product string `json:"product"`
	Version string `json:"version"`
}

// AudioFormat describes a PCM stream
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// CaptureStarted is sent when a capture is armed
type CaptureStarted struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

// Record describes a finished capture or transcode
type Record struct {
	ID             string      `json:"id"`
	SourcePath     string      `json:"source_path"`
	Format         AudioFormat `json:"format"`
	BodyBytes      int64       `json:"body_bytes"`
	DurationMs     int64       `json:"duration_ms"`
	Bitrate        int         `json:"bitrate,omitempty"`
	Quality        float64     `json:"quality,omitempty"`
	CompressedPath string      `json:"compressed_path,omitempty"`
}

// TranscodeProgress reports job progress in percent
type TranscodeProgress struct {
	JobID    string  `json:"job_id"`
	Progress float64 `json:"progress"`
}

// TranscodeFailed reports a job error
type TranscodeFailed struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// TranscodeDone reports a finished job
type TranscodeDone struct {
	JobID  string `json:"job_id"`
	Record Record `json:"record"`
}

// Archived reports an uploaded file
type Archived struct {
	JobID string `json:"job_id,omitempty"`
	Path  string `json:"path"`
	URL   string `json:"url"`
}

// TrimRequest selects the fraction removed from each end
type TrimRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscodeRequest is the body of POST /transcode and POST /capture/stop
type TranscodeRequest struct {
	Source      string       `json:"source,omitempty"`
	Destination string       `json:"destination,omitempty"`
	Codec       string       `json:"codec,omitempty"`
	Bitrate     int          `json:"bitrate,omitempty"`
	Quality     float64      `json:"quality,omitempty"`
	Trim        *TrimRequest `json:"trim,omitempty"`
}

// JobResponse identifies a queued job
type JobResponse struct {
	JobID string `json:"job_id"`
}

// CaptureStatus is the capture part of GET /status
type CaptureStatus struct {
	State         string `json:"state"`
	SessionID     string `json:"session_id,omitempty"`
	Path          string `json:"path,omitempty"`
	BytesCaptured int64  `json:"bytes_captured"`
	DurationMs    int64  `json:"duration_ms"`
}

// JobStatus is one job in GET /status
type JobStatus struct {
	ID       string  `json:"id"`
	Codec    string  `json:"codec"`
	Source   string  `json:"source"`
	Progress float64 `json:"progress"`
	Done     bool    `json:"done"`
	Output   string  `json:"output,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Status is the body of GET /status
type Status struct {
	Version string        `json:"version"`
	Capture CaptureStatus `json:"capture"`
	Jobs    []JobStatus   `json:"jobs"`
}

// Error is the body of every non-2xx response
type Error struct {
	Error string `json:"error"`
}
