package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes recorded by the dispatcher.
const (
	OutcomeSent         = "sent"
	OutcomeFailed       = "failed"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeSkipped      = "skipped"
)

// OutboxMetrics tracks dispatcher throughput and the outbox backlog.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	latency    prometheus.Histogram
	backlog    *prometheus.GaugeVec
}

// NewOutboxMetrics registers the outbox metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_deliveries_total",
		Help: "Outbox delivery attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_delivery_duration_seconds",
		Help:    "Time spent in the delivery channel per attempt.",
		Buckets: prometheus.DefBuckets,
	})
	backlog := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "outbox_records",
		Help: "Outbox rows by status at the last backlog scan.",
	}, []string{"status"})
	reg.MustRegister(deliveries, latency, backlog)
	return &OutboxMetrics{
		deliveries: deliveries,
		latency:    latency,
		backlog:    backlog,
	}
}

// IncOutcome counts one processed record.
func (m *OutboxMetrics) IncOutcome(outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveDelivery records how long the channel took.
func (m *OutboxMetrics) ObserveDelivery(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

// SetBacklog sets the row count for one status.
func (m *OutboxMetrics) SetBacklog(status string, count int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.WithLabelValues(normalizeLabel(status)).Set(float64(count))
}
