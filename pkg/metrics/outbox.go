package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	results *prometheus.CounterVec
}

// Publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetry        = "retry"
	OutboxDeadLettered = "dead_lettered"
)

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendcare_outbox_publish_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(results)
	return &OutboxMetrics{results: results}
}

func (o *OutboxMetrics) Inc(eventType, outcome string) {
	if o == nil || o.results == nil {
		return
	}
	o.results.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
