// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_speech_session"

// Metrics holds all Prometheus metrics for the service.
// All Record* methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Session metrics
	SessionsTotal    *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	SessionsSuccess  prometheus.Counter
	SessionsFailed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	SessionsRejected *prometheus.CounterVec

	// Segment metrics
	SegmentsInterim    prometheus.Counter
	SegmentsFinal      prometheus.Counter
	SegmentsSuppressed *prometheus.CounterVec
	SpeakersResolved   prometheus.Counter

	// Audio metrics
	AudioBytesCaptured  prometheus.Counter
	AudioChunksCaptured prometheus.Counter
	AudioSendErrors     prometheus.Counter

	// Engine metrics
	EngineErrors    *prometheus.CounterVec
	AuthProbeResult *prometheus.CounterVec

	// Event bus metrics
	BusHandlerPanics *prometheus.CounterVec

	// History metrics
	HistoryWrites      prometheus.Counter
	HistoryWriteErrors *prometheus.CounterVec

	// gRPC control plane metrics
	GRPCRequests        *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of transcription sessions started",
		}, []string{"mode"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently running transcription sessions",
		}),
		SessionsSuccess: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_success_total",
			Help:      "Total number of sessions that ended without error",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions that ended with an error",
		}, []string{"kind"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of transcription sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		}),
		SessionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Total number of session starts rejected before running",
		}, []string{"kind"}),

		SegmentsInterim: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_interim_total",
			Help:      "Total number of interim segments emitted",
		}),
		SegmentsFinal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_final_total",
			Help:      "Total number of final segments emitted",
		}),
		SegmentsSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_suppressed_total",
			Help:      "Total number of recognition results not emitted",
		}, []string{"reason"}),
		SpeakersResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speakers_resolved_total",
			Help:      "Total number of new speaker labels allocated",
		}),

		AudioBytesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_captured_total",
			Help:      "Total audio bytes captured",
		}),
		AudioChunksCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_captured_total",
			Help:      "Total audio chunks captured",
		}),
		AudioSendErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_send_errors_total",
			Help:      "Total audio chunks the recognizer refused",
		}),

		EngineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Total number of engine failures by kind",
		}, []string{"kind"}),
		AuthProbeResult: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_probe_total",
			Help:      "Authentication probe outcomes",
		}, []string{"result"}),

		BusHandlerPanics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_handler_panics_total",
			Help:      "Total number of recovered event handler panics",
		}, []string{"event"}),

		HistoryWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "Total number of history entries appended",
		}),
		HistoryWriteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_errors_total",
			Help:      "Total number of failed history operations",
		}, []string{"op"}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC requests by method and code",
		}, []string{"method", "code"}),
		GRPCRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart(mode string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(mode).Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending. kind is empty on success.
func (m *Metrics) RecordSessionEnd(kind string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if kind == "" {
		m.SessionsSuccess.Inc()
	} else {
		m.SessionsFailed.WithLabelValues(kind).Inc()
	}
}

// RecordSessionRejected records a start request refused before running.
func (m *Metrics) RecordSessionRejected(kind string) {
	if m == nil {
		return
	}
	m.SessionsRejected.WithLabelValues(kind).Inc()
}

// RecordSegment records an emitted segment.
func (m *Metrics) RecordSegment(final bool) {
	if m == nil {
		return
	}
	if final {
		m.SegmentsFinal.Inc()
	} else {
		m.SegmentsInterim.Inc()
	}
}

// RecordSegmentSuppressed records a recognition result that was not emitted.
func (m *Metrics) RecordSegmentSuppressed(reason string) {
	if m == nil {
		return
	}
	m.SegmentsSuppressed.WithLabelValues(reason).Inc()
}

// RecordSpeakerResolved records a newly allocated speaker label.
func (m *Metrics) RecordSpeakerResolved() {
	if m == nil {
		return
	}
	m.SpeakersResolved.Inc()
}

// RecordAudioCaptured records one captured chunk.
func (m *Metrics) RecordAudioCaptured(bytes int) {
	if m == nil {
		return
	}
	m.AudioBytesCaptured.Add(float64(bytes))
	m.AudioChunksCaptured.Inc()
}

// RecordAudioSendError records a chunk the recognizer refused.
func (m *Metrics) RecordAudioSendError() {
	if m == nil {
		return
	}
	m.AudioSendErrors.Inc()
}

// RecordEngineError records an engine failure.
func (m *Metrics) RecordEngineError(kind string) {
	if m == nil {
		return
	}
	m.EngineErrors.WithLabelValues(kind).Inc()
}

// RecordAuthProbe records an authentication probe outcome.
func (m *Metrics) RecordAuthProbe(result string) {
	if m == nil {
		return
	}
	m.AuthProbeResult.WithLabelValues(result).Inc()
}

// RecordHandlerPanic records a recovered event handler panic.
func (m *Metrics) RecordHandlerPanic(event string) {
	if m == nil {
		return
	}
	m.BusHandlerPanics.WithLabelValues(event).Inc()
}

// RecordHistoryWrite records a history operation.
func (m *Metrics) RecordHistoryWrite(op string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.HistoryWriteErrors.WithLabelValues(op).Inc()
		return
	}
	if op == "append" {
		m.HistoryWrites.Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCRequest records a completed gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}
