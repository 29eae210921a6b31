package metrics

import "github.com/prometheus/client_golang/prometheus"

// PollerMetrics counts order status fetches made by pollers.
type PollerMetrics struct {
	fetches *prometheus.CounterVec
	stops   *prometheus.CounterVec
}

// NewPollerMetrics registers poller metrics on reg. A nil registerer yields no-op metrics.
func NewPollerMetrics(reg prometheus.Registerer) *PollerMetrics {
	if reg == nil {
		return &PollerMetrics{}
	}
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendcare_order_poll_fetches_total",
		Help: "Order status fetches by source and result.",
	}, []string{"source", "result"})
	stops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendcare_order_poll_stops_total",
		Help: "Order pollers stopped, by reason.",
	}, []string{"reason"})
	reg.MustRegister(fetches, stops)
	return &PollerMetrics{fetches: fetches, stops: stops}
}

func (p *PollerMetrics) IncFetch(source, result string) {
	if p == nil || p.fetches == nil {
		return
	}
	p.fetches.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}

func (p *PollerMetrics) IncStop(reason string) {
	if p == nil || p.stops == nil {
		return
	}
	p.stops.WithLabelValues(normalizeLabel(reason)).Inc()
}
