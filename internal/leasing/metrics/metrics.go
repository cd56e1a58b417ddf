package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the leasing module.
// Tracks order flow, inbound message handling and operation latency.
type Metrics struct {
	OrdersPlaced      *prometheus.CounterVec
	OrdersResolved    *prometheus.CounterVec
	InboundMessages   *prometheus.CounterVec
	DroppedMessages   *prometheus.CounterVec
	SendFailures      *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New registers the leasing metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobank_orders_placed_total",
			Help: "Orders installed on a local device or sent to a remote domain",
		}, []string{"route"}),
		OrdersResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobank_orders_resolved_total",
			Help: "Orders resolved, by outcome and whether the deadline was met",
		}, []string{"outcome", "punctuality"}),
		InboundMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobank_inbound_messages_total",
			Help: "Decoded cross-domain messages by kind",
		}, []string{"kind"}),
		DroppedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobank_dropped_messages_total",
			Help: "Inbound messages dropped before or during dispatch",
		}, []string{"reason"}),
		SendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robobank_send_failures_total",
			Help: "Outbound sends that failed synchronously",
		}, []string{"kind"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "robobank_operation_duration_seconds",
			Help:    "Duration of leasing operations including the store transaction",
			Buckets: latencyBuckets,
		}, []string{"operation"}),
	}
}

// IncOrderPlaced records an order; route is "local" or "remote".
func (m *Metrics) IncOrderPlaced(route string) {
	m.OrdersPlaced.WithLabelValues(route).Inc()
}

// IncOrderResolved records a resolution.
func (m *Metrics) IncOrderResolved(outcome string, onTime bool) {
	punctuality := "late"
	if onTime {
		punctuality = "on_time"
	}
	m.OrdersResolved.WithLabelValues(outcome, punctuality).Inc()
}

func (m *Metrics) IncInbound(kind string) {
	m.InboundMessages.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncDropped(reason string) {
	m.DroppedMessages.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSendFailure(kind string) {
	m.SendFailures.WithLabelValues(kind).Inc()
}

// ObserveOperation records the duration of op.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
