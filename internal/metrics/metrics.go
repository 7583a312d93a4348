// ABOUTME: Prometheus metrics for capture, transcode and the control server
// ABOUTME: Registered on a caller-supplied registry and served at /metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the recorder
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	PipelineBytes  prometheus.Counter
	PipelineChunks prometheus.Counter

	// Capture metrics
	CapturesStarted  prometheus.Counter
	CapturesFinished prometheus.Counter
	CaptureFailures  prometheus.Counter
	ActiveCaptures   prometheus.Gauge
	CaptureDuration  prometheus.Histogram

	// Transcode metrics
	TranscodeJobs     *prometheus.CounterVec
	TranscodeDuration *prometheus.HistogramVec
	QueuedJobs        prometheus.Gauge

	// Archive metrics
	ArchiveUploads *prometheus.CounterVec
	ArchiveBytes   prometheus.Counter

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
	WSClients    prometheus.Gauge
}

// New creates the metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PipelineBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "recorder_pipeline_bytes_total",
			Help: "Total PCM bytes pushed through the processor chain",
		}),
		PipelineChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "recorder_pipeline_chunks_total",
			Help: "Total chunks pushed through the processor chain",
		}),

		CapturesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "recorder_captures_started_total",
			Help: "Total number of captures armed",
		}),
		CapturesFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "recorder_captures_finished_total",
			Help: "Total number of captures finalized",
		}),
		CaptureFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "recorder_capture_failures_total",
			Help: "Total number of captures that failed to arm or finalize",
		}),
		ActiveCaptures: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_active_captures",
			Help: "Number of captures currently armed",
		}),
		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_capture_duration_seconds",
			Help:    "Audio duration of finalized captures",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		TranscodeJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_transcode_jobs_total",
			Help: "Total transcode jobs by codec and outcome",
		}, []string{"codec", "status"}),
		TranscodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recorder_transcode_duration_seconds",
			Help:    "Wall time spent transcoding",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}, []string{"codec"}),
		QueuedJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_transcode_jobs_queued",
			Help: "Transcode jobs submitted but not yet finished",
		}),

		ArchiveUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_archive_uploads_total",
			Help: "Total archive uploads by outcome",
		}, []string{"status"}),
		ArchiveBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "recorder_archive_bytes_total",
			Help: "Total bytes uploaded to the archive",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total control API requests",
		}, []string{"method", "path", "code"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_ws_clients",
			Help: "Connected event stream clients",
		}),
	}
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
