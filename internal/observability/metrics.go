package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Live session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meeting_backend_active_sessions",
		Help: "Number of active live transcription sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meeting_backend_sessions_total",
		Help: "Total number of live transcription sessions handled",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meeting_backend_session_duration_seconds",
		Help:    "Duration of live transcription sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// Relay metrics
	audioBytesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meeting_backend_audio_bytes_total",
		Help: "Total audio bytes forwarded to the speech vendor",
	})

	transcriptEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meeting_backend_transcript_events_total",
		Help: "Total transcript events delivered to clients",
	})

	droppedVendorFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meeting_backend_dropped_vendor_frames_total",
		Help: "Vendor messages dropped because they did not parse as JSON objects",
	})

	vendorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_backend_vendor_errors_total",
		Help: "Total speech vendor transport errors",
	}, []string{"kind"}) // kind: "dial", "send", "receive", "config"

	// Meeting processing metrics
	meetingsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_backend_meetings_processed_total",
		Help: "Total meeting processing runs",
	}, []string{"status"})

	processingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meeting_backend_processing_latency_seconds",
		Help:    "Meeting processing pipeline latency in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_backend_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meeting_backend_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_backend_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// RecordSessionStart records a new live transcription session
func RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records session teardown
func RecordSessionEnd(seconds float64) {
	activeSessions.Dec()
	sessionDuration.Observe(seconds)
}

// RecordAudioBytes records audio bytes forwarded to the vendor
func RecordAudioBytes(n int) {
	audioBytesForwarded.Add(float64(n))
}

// RecordTranscriptEvent records one transcript event delivered to a client
func RecordTranscriptEvent() {
	transcriptEvents.Inc()
}

// RecordDroppedVendorFrame records a malformed vendor message that was dropped
func RecordDroppedVendorFrame() {
	droppedVendorFrames.Inc()
}

// RecordVendorError records a speech vendor transport error
func RecordVendorError(kind string) {
	vendorErrors.WithLabelValues(kind).Inc()
}

// RecordMeetingProcessed records the outcome of one processing pipeline run
func RecordMeetingProcessed(status string) {
	meetingsProcessed.WithLabelValues(status).Inc()
}

// RecordProcessingLatency records the latency of a completed pipeline run
func RecordProcessingLatency(d time.Duration) {
	processingLatency.Observe(d.Seconds())
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
