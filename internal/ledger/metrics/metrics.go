package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger adapter.
// Tracks append throughput, failures, and circuit breaker state.
type Metrics struct {
	TopicsCreated  prometheus.Counter
	EventsAppended *prometheus.CounterVec
	AppendFailures *prometheus.CounterVec
	BreakerOpen    prometheus.Gauge
}

// New creates a new Metrics instance with all ledger adapter metrics registered.
func New() *Metrics {
	return &Metrics{
		TopicsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pharmatrace_ledger_topics_created_total",
			Help: "Total number of per-batch ledger topics created",
		}),
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pharmatrace_ledger_events_appended_total",
			Help: "Total number of events appended to the ledger",
		}, []string{"event_type"}),
		AppendFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pharmatrace_ledger_append_failures_total",
			Help: "Total number of failed ledger appends",
		}, []string{"event_type"}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pharmatrace_ledger_breaker_open",
			Help: "1 when the ledger circuit breaker is open, 0 otherwise",
		}),
	}
}

// IncrementTopicsCreated records a successful topic creation.
func (m *Metrics) IncrementTopicsCreated() {
	m.TopicsCreated.Inc()
}

// IncrementEventsAppended records a successful append.
func (m *Metrics) IncrementEventsAppended(eventType string) {
	m.EventsAppended.WithLabelValues(eventType).Inc()
}

// IncrementAppendFailures records a failed append.
func (m *Metrics) IncrementAppendFailures(eventType string) {
	m.AppendFailures.WithLabelValues(eventType).Inc()
}

// SetBreakerOpen records the circuit breaker state.
func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerOpen.Set(1)
	} else {
		m.BreakerOpen.Set(0)
	}
}
