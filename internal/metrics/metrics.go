// Package metrics provides the Prometheus metrics of the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voxbrief"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Inbound
	EventsTotal   *prometheus.CounterVec
	AudioRejected *prometheus.CounterVec
	AudioBytes    prometheus.Counter

	// Transcription
	STTLatency  *prometheus.HistogramVec
	STTErrors   *prometheus.CounterVec
	STTRetries  *prometheus.CounterVec
	Transcripts prometheus.Counter

	// Completion
	LLMLatency *prometheus.HistogramVec
	LLMErrors  *prometheus.CounterVec

	// Actions
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	// Sessions
	SessionsActive  prometheus.Gauge
	SessionsExpired prometheus.Counter
	Superseded      prometheus.Counter

	// Event sink
	EventPublishTotal  *prometheus.CounterVec
	EventPublishErrors *prometheus.CounterVec

	// Outbound
	RepliesTotal    *prometheus.CounterVec
	ReplyRecoveries *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound chat events by kind",
		}, []string{"channel", "kind"}),
		AudioRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_rejected_total",
			Help:      "Audio messages refused before transcription",
		}, []string{"reason"}),
		AudioBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Accepted audio bytes",
		}),

		STTLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Transcription call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"backend"}),
		STTErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Failed transcription attempts",
		}, []string{"backend", "kind"}),
		STTRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_retries_total",
			Help:      "Transcription retries",
		}, []string{"backend"}),
		Transcripts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Completed transcriptions",
		}),

		LLMLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "Completion call latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"provider"}),
		LLMErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Failed completion calls",
		}, []string{"provider", "kind"}),

		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Menu actions by mode and outcome",
		}, []string{"mode", "outcome"}),
		ActionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Menu action processing time",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Sessions removed by the sweeper",
		}),
		Superseded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_superseded_total",
			Help:      "Transcripts discarded because newer audio arrived",
		}),

		EventPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Domain events published",
		}, []string{"sink", "type"}),
		EventPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Domain event publish failures",
		}, []string{"sink", "type"}),

		RepliesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Outbound reply chunks sent",
		}, []string{"channel"}),
		ReplyRecoveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_recoveries_total",
			Help:      "Outbound sends that needed a fallback strategy",
		}, []string{"channel", "strategy"}),
	}
}

// RecordEvent records an inbound event.
func (m *Metrics) RecordEvent(channel, kind string) {
	m.EventsTotal.WithLabelValues(channel, kind).Inc()
}

// RecordRejected records refused audio.
func (m *Metrics) RecordRejected(reason string) {
	m.AudioRejected.WithLabelValues(reason).Inc()
}

// RecordSTT records one transcription attempt.
func (m *Metrics) RecordSTT(backend string, seconds float64, errKind string) {
	m.STTLatency.WithLabelValues(backend).Observe(seconds)
	if errKind != "" {
		m.STTErrors.WithLabelValues(backend, errKind).Inc()
	}
}

// RecordLLM records one completion call.
func (m *Metrics) RecordLLM(provider string, seconds float64, errKind string) {
	m.LLMLatency.WithLabelValues(provider).Observe(seconds)
	if errKind != "" {
		m.LLMErrors.WithLabelValues(provider, errKind).Inc()
	}
}

// RecordAction records a finished menu action.
func (m *Metrics) RecordAction(mode, outcome string, seconds float64) {
	m.ActionsTotal.WithLabelValues(mode, outcome).Inc()
	m.ActionDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordPublish records a domain event publish attempt.
func (m *Metrics) RecordPublish(sink, eventType string, err error) {
	m.EventPublishTotal.WithLabelValues(sink, eventType).Inc()
	if err != nil {
		m.EventPublishErrors.WithLabelValues(sink, eventType).Inc()
	}
}
