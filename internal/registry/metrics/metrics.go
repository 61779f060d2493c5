package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
// Tracks batch creation, unit minting, and verification traffic.
type Metrics struct {
	BatchesCreated       prometheus.Counter
	UnitsMinted          prometheus.Counter
	MintFailures         prometheus.Counter
	Verifications        *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	MintDuration         prometheus.Histogram
}

// New creates a new Metrics instance with all registry module metrics registered.
func New() *Metrics {
	return &Metrics{
		BatchesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pharmatrace_batches_created_total",
			Help: "Total number of batches created",
		}),
		UnitsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pharmatrace_units_minted_total",
			Help: "Total number of units minted",
		}),
		MintFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pharmatrace_mint_failures_total",
			Help: "Total number of unit mint attempts that failed at the ledger",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pharmatrace_verifications_total",
			Help: "Total number of verification scans by kind, result, and scanner device class",
		}, []string{"kind", "result", "device"}),
		VerificationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pharmatrace_verification_duration_seconds",
			Help:    "Duration of verification operations (consumer-facing hot path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		MintDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pharmatrace_mint_duration_seconds",
			Help:    "Duration of full bulk mint operations (N sequential ledger appends)",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementBatchesCreated records a successful batch creation.
func (m *Metrics) IncrementBatchesCreated() {
	m.BatchesCreated.Inc()
}

// AddUnitsMinted records n successfully minted units.
func (m *Metrics) AddUnitsMinted(n int) {
	m.UnitsMinted.Add(float64(n))
}

// IncrementMintFailures records a mint stopped by a ledger failure.
func (m *Metrics) IncrementMintFailures() {
	m.MintFailures.Inc()
}

// ObserveVerification records one verification scan.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveVerification(kind, result, device string, start time.Time) {
	m.Verifications.WithLabelValues(kind, result, device).Inc()
	m.VerificationDuration.Observe(time.Since(start).Seconds())
}

// ObserveMint records the duration of a bulk mint.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveMint(start time.Time) {
	m.MintDuration.Observe(time.Since(start).Seconds())
}
