// Package metrics exposes Prometheus counters for voice sessions and generation calls.
// All Record methods are safe on a nil *Metrics so callers never branch on whether
// metrics are enabled.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/voice-relay/pkg/core"
)

// Generation call kinds.
const (
	KindTranscribe = "transcribe"
	KindReply      = "reply"
)

// Generation call outcomes.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	InboundEventsTotal *prometheus.CounterVec
	AudioSamplesTotal  prometheus.Counter

	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	GenerationFailures *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voice_relay"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of connected voice sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total voice sessions by outcome",
		},
		[]string{"status"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Voice session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	inboundEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound client events by type",
		},
		[]string{"type"},
	)

	audioSamplesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_total",
			Help:      "Microphone samples accepted into session buffers",
		},
	)

	generationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation calls by backend, kind and outcome",
		},
		[]string{"backend", "kind", "status"},
	)

	generationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend", "kind"},
	)

	generationFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Failed generation calls by kind and error type",
		},
		[]string{"kind", "error_type"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		inboundEventsTotal,
		audioSamplesTotal,
		generationsTotal,
		generationDuration,
		generationFailures,
	)

	return &Metrics{
		registry:           registry,
		SessionsActive:     sessionsActive,
		SessionsTotal:      sessionsTotal,
		SessionDuration:    sessionDuration,
		InboundEventsTotal: inboundEventsTotal,
		AudioSamplesTotal:  audioSamplesTotal,
		GenerationsTotal:   generationsTotal,
		GenerationDuration: generationDuration,
		GenerationFailures: generationFailures,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session closing; status is "ok" or "error".
func (m *Metrics) RecordSessionEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordSessionRejected counts a connection refused before upgrade.
func (m *Metrics) RecordSessionRejected(reason string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues("rejected_" + reason).Inc()
}

func (m *Metrics) RecordInboundEvent(eventType string) {
	if m == nil {
		return
	}
	m.InboundEventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordAudioSamples(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioSamplesTotal.Add(float64(n))
}

// RecordGeneration records one generation call. A nil err is a success; a context
// error counts as cancelled rather than failed.
func (m *Metrics) RecordGeneration(backend, kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	switch {
	case err == nil:
	case core.IsCanceled(err):
		status = StatusCanceled
	default:
		status = StatusError
		m.GenerationFailures.WithLabelValues(kind, errorType(err)).Inc()
	}
	m.GenerationsTotal.WithLabelValues(backend, kind, status).Inc()
	m.GenerationDuration.WithLabelValues(backend, kind).Observe(duration.Seconds())
}

func errorType(err error) string {
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr.Type != "" {
		return string(coreErr.Type)
	}
	return "unknown"
}
