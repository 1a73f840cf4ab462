// Package metrics defines the Prometheus instrumentation for the STT service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the STT service
type Metrics struct {
	// Streaming session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsClosed    prometheus.Counter
	SessionsRejected  prometheus.Counter
	SessionDuration   prometheus.Histogram
	MessagesReceived  prometheus.Counter
	DecodeErrors      prometheus.Counter
	PartialResults    prometheus.Counter
	FinalResults      prometheus.Counter

	// Batch transcription metrics
	BatchRequests prometheus.Counter
	BatchDuration prometheus.Histogram
	BatchErrors   *prometheus.CounterVec

	// Engine metrics
	EngineRequests prometheus.Counter
	EngineFailures prometheus.Counter
	EngineDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Streaming session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stt_active_sessions",
			Help: "Current number of live streaming sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_sessions_created_total",
			Help: "Total number of streaming sessions created",
		}),
		SessionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_sessions_closed_total",
			Help: "Total number of streaming sessions closed",
		}),
		SessionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_sessions_rejected_total",
			Help: "Total number of sessions rejected at the capacity limit",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_session_duration_seconds",
			Help:    "Duration of streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_realtime_messages_received_total",
			Help: "Total number of inbound realtime messages",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_decode_errors_total",
			Help: "Total number of audio decode errors",
		}),
		PartialResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_partial_results_total",
			Help: "Total number of partial transcription results emitted",
		}),
		FinalResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_final_results_total",
			Help: "Total number of final transcription results emitted",
		}),

		// Batch transcription metrics
		BatchRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_batch_requests_total",
			Help: "Total number of batch transcription requests",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_batch_duration_seconds",
			Help:    "Duration of batch transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		BatchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_batch_errors_total",
			Help: "Total number of batch transcription errors",
		}, []string{"error_type"}),

		// Engine metrics
		EngineRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_engine_requests_total",
			Help: "Total number of engine inference requests",
		}),
		EngineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_engine_failures_total",
			Help: "Total number of failed engine inference requests",
		}),
		EngineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_engine_duration_seconds",
			Help:    "Duration of engine inference requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~1 minute
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionCreated records a session admission
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionClosed records a session teardown and its duration
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	m.SessionsClosed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionRejected records a capacity rejection
func (m *Metrics) RecordSessionRejected() {
	m.SessionsRejected.Inc()
}

// SetActiveSessions sets the live session gauge
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordMessageReceived records one inbound realtime message
func (m *Metrics) RecordMessageReceived() {
	m.MessagesReceived.Inc()
}

// RecordDecodeError records an audio decode failure
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// RecordPartialResult records an emitted partial result
func (m *Metrics) RecordPartialResult() {
	m.PartialResults.Inc()
}

// RecordFinalResult records an emitted final result
func (m *Metrics) RecordFinalResult() {
	m.FinalResults.Inc()
}

// RecordBatchRequest records a completed batch request
func (m *Metrics) RecordBatchRequest(durationSeconds float64) {
	m.BatchRequests.Inc()
	m.BatchDuration.Observe(durationSeconds)
}

// RecordBatchError records a batch request failure by error type
func (m *Metrics) RecordBatchError(errorType string) {
	m.BatchErrors.WithLabelValues(errorType).Inc()
}

// RecordEngineRequest records one engine call and its duration
func (m *Metrics) RecordEngineRequest(durationSeconds float64) {
	m.EngineRequests.Inc()
	m.EngineDuration.Observe(durationSeconds)
}

// RecordEngineFailure records a failed engine call
func (m *Metrics) RecordEngineFailure() {
	m.EngineFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
