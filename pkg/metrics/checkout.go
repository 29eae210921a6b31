package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks the payment lifecycle: session creation, gateway calls,
// finalization and dispensing.
type CheckoutMetrics struct {
	checkouts       *prometheus.CounterVec
	gatewayRequests *prometheus.CounterVec
	finalizeLatency prometheus.Histogram
	orders          *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on reg. A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendcare_checkouts_total",
		Help: "Checkout sessions by outcome.",
	}, []string{"outcome"})
	gatewayRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendcare_gateway_requests_total",
		Help: "Calls to the payment broker by operation and result.",
	}, []string{"operation", "result"})
	finalizeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vendcare_finalize_duration_seconds",
		Help:    "Time spent finalizing a confirmed payment into an order.",
		Buckets: prometheus.DefBuckets,
	})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendcare_order_transitions_total",
		Help: "Order status transitions by target status.",
	}, []string{"status"})
	reg.MustRegister(checkouts, gatewayRequests, finalizeLatency, orders)
	return &CheckoutMetrics{
		checkouts:       checkouts,
		gatewayRequests: gatewayRequests,
		finalizeLatency: finalizeLatency,
		orders:          orders,
	}
}

// IncCheckout counts a checkout outcome such as initiated, cancelled, failed or finalized.
func (m *CheckoutMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncGatewayRequest counts a broker call.
func (m *CheckoutMetrics) IncGatewayRequest(operation, result string) {
	if m == nil || m.gatewayRequests == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

func (m *CheckoutMetrics) ObserveFinalize(duration time.Duration) {
	if m == nil || m.finalizeLatency == nil {
		return
	}
	m.finalizeLatency.Observe(duration.Seconds())
}

func (m *CheckoutMetrics) IncOrderTransition(status string) {
	if m == nil || m.orders == nil {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(status)).Inc()
}
