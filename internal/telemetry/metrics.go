// Package telemetry exposes Prometheus instrumentation for the email
// delivery subsystem.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the subsystem's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so tests can pass nil instead of wiring a
// registry.
type Metrics struct {
	enqueueOutcomes *prometheus.CounterVec
	sends           *prometheus.CounterVec
	sendDuration    prometheus.Histogram
	webhookEvents   *prometheus.CounterVec
	suppressions    *prometheus.CounterVec
}

// NewMetrics registers the subsystem's collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		enqueueOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lokumail_enqueue_outcomes_total",
			Help: "Enqueue results by job type and outcome.",
		}, []string{"type", "outcome"}),
		sends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lokumail_sends_total",
			Help: "Delivery attempts by result (sent, retried, failed, suppressed, cancelled).",
		}, []string{"result"}),
		sendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lokumail_send_duration_seconds",
			Help:    "Wall time of provider send calls.",
			Buckets: prometheus.DefBuckets,
		}),
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lokumail_webhook_events_total",
			Help: "Inbound provider webhook events by type.",
		}, []string{"event_type"}),
		suppressions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lokumail_suppressions_total",
			Help: "Suppression list insertions by reason.",
		}, []string{"reason"}),
	}
}

// ObserveEnqueue records one enqueue outcome.
func (m *Metrics) ObserveEnqueue(jobType, outcome string) {
	if m == nil {
		return
	}
	m.enqueueOutcomes.WithLabelValues(jobType, outcome).Inc()
}

// ObserveSend records one delivery attempt result and its provider call
// duration.
func (m *Metrics) ObserveSend(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
	if duration > 0 {
		m.sendDuration.Observe(duration.Seconds())
	}
}

// ObserveWebhookEvent records one inbound provider event.
func (m *Metrics) ObserveWebhookEvent(eventType string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType).Inc()
}

// ObserveSuppression records one new suppression entry.
func (m *Metrics) ObserveSuppression(reason string) {
	if m == nil {
		return
	}
	m.suppressions.WithLabelValues(reason).Inc()
}
