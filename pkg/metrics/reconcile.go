package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers the payment-to-order pipeline. All methods are nil-safe
// so components can run without a registry in tests.
type PipelineMetrics struct {
	outcomes        *prometheus.CounterVec
	duration        prometheus.Histogram
	degradations    *prometheus.CounterVec
	deductions      *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	pushFailures    prometheus.Counter
	activeSessions  prometheus.Gauge
	webhookRequests *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline collectors on reg.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	m := &PipelineMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Payment events processed by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Time spent reconciling one payment event.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "degradations_total",
			Help:      "Orders materialized from degraded data, by reason.",
		}, []string{"reason"}),
		deductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "deductions_total",
			Help:      "Stock deduction lines by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "Notification create attempts by type and outcome.",
		}, []string{"type", "outcome"}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "push_failures_total",
			Help:      "Live pushes that failed and dropped the session.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "sessions",
			Help:      "Operator sessions currently registered.",
		}),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Gateway webhook requests by event type and status class.",
		}, []string{"event_type", "status"}),
	}
	reg.MustRegister(
		m.outcomes,
		m.duration,
		m.degradations,
		m.deductions,
		m.notifications,
		m.pushFailures,
		m.activeSessions,
		m.webhookRequests,
	)
	return m
}

func (m *PipelineMetrics) ObserveReconcile(outcome string, duration time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.duration.Observe(duration.Seconds())
}

func (m *PipelineMetrics) IncDegradation(reason string) {
	if m == nil || m.degradations == nil {
		return
	}
	m.degradations.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncDeduction records one deduction line; result is ok, backordered or failed.
func (m *PipelineMetrics) IncDeduction(result string) {
	if m == nil || m.deductions == nil {
		return
	}
	m.deductions.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *PipelineMetrics) IncNotification(kind, outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *PipelineMetrics) IncPushFailure() {
	if m == nil || m.pushFailures == nil {
		return
	}
	m.pushFailures.Inc()
}

func (m *PipelineMetrics) SetSessions(n int) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *PipelineMetrics) IncWebhook(eventType, status string) {
	if m == nil || m.webhookRequests == nil {
		return
	}
	m.webhookRequests.WithLabelValues(normalizeLabel(eventType), normalizeLabel(status)).Inc()
}
