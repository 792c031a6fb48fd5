package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockAttempts counts quorum acquisition rounds.
	LockAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "galoy_lock_attempts_total",
		Help: "Total number of quorum lock acquisition rounds",
	})
	// LockAcquisitions counts Acquire outcomes by result.
	LockAcquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galoy_lock_acquisitions_total",
		Help: "Lock acquisitions by result (acquired, contention, error, canceled)",
	}, []string{"result"})
	// LockExtensions counts Extend outcomes by result.
	LockExtensions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galoy_lock_extensions_total",
		Help: "Lock extensions by result (extended, expired, failed)",
	}, []string{"result"})
	// LockHeld observes how long tokens stayed held.
	LockHeld = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "galoy_lock_held_seconds",
		Help:    "Time between lock acquisition and release",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	})
	// Payments counts intraledger payment outcomes by result.
	Payments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galoy_intraledger_payments_total",
		Help: "Intraledger payments by result",
	}, []string{"result"})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers lock and payment collectors on the provided registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(LockAttempts, LockAcquisitions, LockExtensions, LockHeld, Payments)
}
