// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "expo_kiosk"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Detection loop metrics
	FramesProcessed  prometheus.Counter
	FramesSkipped    *prometheus.CounterVec
	DetectionLatency prometheus.Histogram
	DetectorReady    prometheus.Gauge
	PersonsVisible   prometheus.Gauge
	VisitorClose     prometheus.Gauge

	// Interaction metrics
	StateTransitions  *prometheus.CounterVec
	WelcomesTriggered prometheus.Counter
	FlagResets        *prometheus.CounterVec
	StaleTimers       *prometheus.CounterVec

	// Q&A metrics
	QueriesResolved *prometheus.CounterVec
	MatchScore      prometheus.Histogram

	// Voice metrics
	PanelsConnected     prometheus.Gauge
	Utterances          prometheus.Counter
	SpeechFailures      prometheus.Counter
	RecognitionErrors   *prometheus.CounterVec
	RecognitionRestarts prometheus.Counter
	InsecureContexts    prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Server-side STT metrics
	STTErrors            *prometheus.CounterVec
	STTUtteranceCount    prometheus.Counter
	AudioBytesReceived   prometheus.Counter
	SegmentLimitExceeded *prometheus.CounterVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Total number of camera frames run through detection",
		}),
		FramesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Total number of camera frames skipped",
		}, []string{"reason"}),
		DetectionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_latency_seconds",
			Help:      "Object detection latency per frame in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		DetectorReady: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detector_ready",
			Help:      "1 when the detection model is ready to serve frames",
		}),
		PersonsVisible: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persons_visible",
			Help:      "Number of persons in the latest frame",
		}),
		VisitorClose: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "visitor_close",
			Help:      "1 when a visitor is close to the kiosk in the latest frame",
		}),

		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of interaction state transitions",
		}, []string{"from", "to"}),
		WelcomesTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "welcomes_triggered_total",
			Help:      "Total number of greetings spoken to approaching visitors",
		}),
		FlagResets: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_resets_total",
			Help:      "Total number of cooldown resets",
		}, []string{"reason"}),
		StaleTimers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_timers_total",
			Help:      "Total number of superseded timer fires that were ignored",
		}, []string{"timer"}),

		QueriesResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_resolved_total",
			Help:      "Total number of visitor queries answered",
		}, []string{"kind"}),
		MatchScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_score",
			Help:      "Similarity score of the best fuzzy match",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),

		PanelsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "panels_connected",
			Help:      "Number of connected kiosk panels",
		}),
		Utterances: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total number of speak commands issued",
		}),
		SpeechFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_failures_total",
			Help:      "Total number of failed speech synthesis requests",
		}),
		RecognitionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of speech recognition errors",
		}, []string{"code", "class"}),
		RecognitionRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_restarts_total",
			Help:      "Total number of automatic recognition restarts",
		}),
		InsecureContexts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insecure_contexts_total",
			Help:      "Total number of panel connections without a secure context",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of server-side STT errors",
		}, []string{"provider"}),
		STTUtteranceCount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_utterances_total",
			Help:      "Total number of utterances detected by server-side STT",
		}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received from panels",
		}),
		SegmentLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_limit_exceeded_total",
			Help:      "Total number of times recognition segment limits were exceeded",
		}, []string{"limit_type"}),

		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls handled",
		}, []string{"method", "code"}),
		GRPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordFrame records a frame that went through detection.
func (m *Metrics) RecordFrame(latencySeconds float64) {
	m.FramesProcessed.Inc()
	m.DetectionLatency.Observe(latencySeconds)
}

// RecordFrameSkipped records a frame dropped before or during detection.
func (m *Metrics) RecordFrameSkipped(reason string) {
	m.FramesSkipped.WithLabelValues(reason).Inc()
}

// RecordDetectorReady records the detector readiness flag.
func (m *Metrics) RecordDetectorReady(ready bool) {
	m.DetectorReady.Set(boolToFloat(ready))
}

// RecordPresence records the latest presence snapshot.
func (m *Metrics) RecordPresence(personCount int, anyClose bool) {
	m.PersonsVisible.Set(float64(personCount))
	m.VisitorClose.Set(boolToFloat(anyClose))
}

// RecordTransition records an interaction state transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordWelcome records a greeting being triggered.
func (m *Metrics) RecordWelcome() {
	m.WelcomesTriggered.Inc()
}

// RecordFlagReset records a cooldown reset, by reason (absence, hard).
func (m *Metrics) RecordFlagReset(reason string) {
	m.FlagResets.WithLabelValues(reason).Inc()
}

// RecordStaleTimer records a superseded timer fire.
func (m *Metrics) RecordStaleTimer(timer string) {
	m.StaleTimers.WithLabelValues(timer).Inc()
}

// RecordQuery records a resolved visitor query.
func (m *Metrics) RecordQuery(kind string, score float64) {
	m.QueriesResolved.WithLabelValues(kind).Inc()
	if kind == "match" {
		m.MatchScore.Observe(score)
	}
}

// RecordPanelConnected records a panel connecting or disconnecting.
func (m *Metrics) RecordPanelConnected(connected bool) {
	if connected {
		m.PanelsConnected.Inc()
		return
	}
	m.PanelsConnected.Dec()
}

// RecordUtterance records a speak command.
func (m *Metrics) RecordUtterance() {
	m.Utterances.Inc()
}

// RecordSpeechFailure records a failed synthesis.
func (m *Metrics) RecordSpeechFailure() {
	m.SpeechFailures.Inc()
}

// RecordRecognitionError records a recognition error with its class.
func (m *Metrics) RecordRecognitionError(code, class string) {
	m.RecognitionErrors.WithLabelValues(code, class).Inc()
}

// RecordRecognitionRestart records an automatic recognition restart.
func (m *Metrics) RecordRecognitionRestart() {
	m.RecognitionRestarts.Inc()
}

// RecordInsecureContext records a panel without a secure context.
func (m *Metrics) RecordInsecureContext() {
	m.InsecureContexts.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTError records a server-side STT error.
func (m *Metrics) RecordSTTError(provider string) {
	m.STTErrors.WithLabelValues(provider).Inc()
}

// RecordSTTUtterance records an utterance boundary detected by server-side STT.
func (m *Metrics) RecordSTTUtterance() {
	m.STTUtteranceCount.Inc()
}

// RecordAudioReceived records audio bytes received from a panel.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
}

// RecordLimitExceeded records when a segment limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.SegmentLimitExceeded.WithLabelValues(limitType).Inc()
}

// RecordGRPCCall records a completed gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, latencySeconds float64) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
