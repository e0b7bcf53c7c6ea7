package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the civic voice agent.
// A nil *Metrics is valid; all Record helpers are no-ops on nil so
// components can be tested without a registry.
type Metrics struct {
	// Capture pipeline metrics
	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter

	// Playback scheduler metrics
	ChunksScheduled prometheus.Counter
	ChunkDuration   prometheus.Histogram
	Interruptions   prometheus.Counter

	// Transcript metrics
	TurnsCompleted  prometheus.Counter
	MessagesEmitted prometheus.Counter

	// Ticket extraction metrics
	TicketsExtracted   prometheus.Counter
	PayloadParseErrors prometheus.Counter

	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsEnded   prometheus.Counter
	SessionDuration prometheus.Histogram
	SessionActive   prometheus.Gauge

	// Live stream metrics
	StreamEvents *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_frames_captured_total",
			Help: "Total number of microphone frames captured",
		}),
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_frames_sent_total",
			Help: "Total number of audio frames sent to the live stream",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_frames_dropped_total",
			Help: "Total number of audio frames dropped before transmission",
		}),

		ChunksScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_playback_chunks_scheduled_total",
			Help: "Total number of playback chunks scheduled",
		}),
		ChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civic_playback_chunk_duration_seconds",
			Help:    "Duration of scheduled playback chunks in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
		Interruptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_playback_interruptions_total",
			Help: "Total number of barge-in interruptions",
		}),

		TurnsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_turns_completed_total",
			Help: "Total number of completed conversation turns",
		}),
		MessagesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_transcript_messages_total",
			Help: "Total number of finalized transcript messages",
		}),

		TicketsExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_tickets_extracted_total",
			Help: "Total number of ticket payloads extracted",
		}),
		PayloadParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_payload_parse_errors_total",
			Help: "Total number of malformed embedded payloads discarded",
		}),

		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_sessions_started_total",
			Help: "Total number of conversation sessions started",
		}),
		SessionsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civic_sessions_ended_total",
			Help: "Total number of conversation sessions ended",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civic_session_duration_seconds",
			Help:    "Duration of conversation sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		SessionActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "civic_session_active",
			Help: "Whether a conversation session is currently active (0 or 1)",
		}),

		StreamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_stream_events_total",
			Help: "Total number of inbound live stream events by type",
		}, []string{"type"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civic_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civic_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured increments the captured frame counter
func (m *Metrics) RecordFrameCaptured() {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
}

// RecordFrameSent increments the sent frame counter
func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// RecordFrameDropped increments the dropped frame counter
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// RecordChunkScheduled records a scheduled playback chunk and its duration
func (m *Metrics) RecordChunkScheduled(duration time.Duration) {
	if m == nil {
		return
	}
	m.ChunksScheduled.Inc()
	m.ChunkDuration.Observe(duration.Seconds())
}

// RecordInterruption increments the barge-in counter
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// RecordTurnCompleted records a completed turn and the messages it emitted
func (m *Metrics) RecordTurnCompleted(messages int) {
	if m == nil {
		return
	}
	m.TurnsCompleted.Inc()
	m.MessagesEmitted.Add(float64(messages))
}

// RecordTicketExtracted increments the extracted ticket counter
func (m *Metrics) RecordTicketExtracted() {
	if m == nil {
		return
	}
	m.TicketsExtracted.Inc()
}

// RecordPayloadParseError increments the malformed payload counter
func (m *Metrics) RecordPayloadParseError() {
	if m == nil {
		return
	}
	m.PayloadParseErrors.Inc()
}

// RecordSessionStarted marks a session as started
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

// RecordSessionEnded marks a session as ended with its total duration
func (m *Metrics) RecordSessionEnded(duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsEnded.Inc()
	m.SessionDuration.Observe(duration.Seconds())
	m.SessionActive.Set(0)
}

// RecordStreamEvent counts an inbound live stream event by type
func (m *Metrics) RecordStreamEvent(eventType string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(eventType).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records an HTTP error by type
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
