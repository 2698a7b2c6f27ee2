// Package monitoring exposes Prometheus metrics for the booking service.
package monitoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SevaSetuLabs/booking/pkg/booking"
)

// Metrics counts booking operations by outcome. It implements
// booking.OperationLogger so the service feeds it without extra wiring.
type Metrics struct {
	operations *prometheus.CounterVec
	sweepItems *prometheus.CounterVec
}

// New registers the booking metrics on the registerer.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by operation name and outcome.",
		}, []string{"operation", "status"}),
		sweepItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "sweep_items_total",
			Help:      "Items processed by the background sweepers, by rule and outcome.",
		}, []string{"reason", "status"}),
	}
}

// LogOperation counts the operation outcome.
func (metrics *Metrics) LogOperation(_ context.Context, entry booking.OperationLog) {
	metrics.operations.WithLabelValues(entry.Operation, entry.Status).Inc()
	if entry.Operation == "sweep" && entry.Reason != "" {
		metrics.sweepItems.WithLabelValues(entry.Reason, entry.Status).Inc()
	}
}
