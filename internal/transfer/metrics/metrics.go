package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the transfer module.
type Metrics struct {
	TransfersRequested *prometheus.CounterVec
	RequestsRejected   prometheus.Counter
	Transitions        *prometheus.CounterVec
	ValidationDuration prometheus.Histogram
}

// New creates a new Metrics instance with all transfer module metrics registered.
func New() *Metrics {
	return &Metrics{
		TransfersRequested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pharmatrace_transfers_requested_total",
			Help: "Total number of accepted transfer requests by classification",
		}, []string{"type"}),
		RequestsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pharmatrace_transfer_requests_rejected_total",
			Help: "Total number of transfer requests rejected by validation",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pharmatrace_transfer_transitions_total",
			Help: "Total number of transfer state transitions by destination state",
		}, []string{"to"}),
		ValidationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pharmatrace_transfer_validation_duration_seconds",
			Help:    "Duration of transfer request validation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncrementRequested records an accepted transfer request.
func (m *Metrics) IncrementRequested(transferType string) {
	m.TransfersRequested.WithLabelValues(transferType).Inc()
}

// IncrementRejected records a transfer request rejected by validation.
func (m *Metrics) IncrementRejected() {
	m.RequestsRejected.Inc()
}

// IncrementTransition records a state transition.
func (m *Metrics) IncrementTransition(to string) {
	m.Transitions.WithLabelValues(to).Inc()
}

// ObserveValidation records the duration of one validation pass.
// Call with time.Now() at the start of validation.
func (m *Metrics) ObserveValidation(start time.Time) {
	m.ValidationDuration.Observe(time.Since(start).Seconds())
}
