package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type CommerceMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	conflicts  *prometheus.CounterVec
	settled    *prometheus.CounterVec
}

var (
	commerceOnce     sync.Once
	commerceRegistry *CommerceMetrics
)

func Commerce() *CommerceMetrics {
	commerceOnce.Do(func() {
		commerceRegistry = &CommerceMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ecom_operations_total",
				Help: "Count of ledger operations by name and outcome kind.",
			}, []string{"operation", "result"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "ecom_operation_duration_seconds",
				Help:    "Latency of ledger operations including commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ecom_commit_conflicts_total",
				Help: "Number of commits rejected because a concurrent operation touched the same records.",
			}, []string{"operation"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ecom_escrow_value_total",
				Help: "Value moved through escrow vaults by phase.",
			}, []string{"phase"}),
		}
		prometheus.MustRegister(
			commerceRegistry.operations,
			commerceRegistry.latency,
			commerceRegistry.conflicts,
			commerceRegistry.settled,
		)
	})
	return commerceRegistry
}

// ObserveOperation records one completed operation. result is "ok" or the
// error kind name.
func (m *CommerceMetrics) ObserveOperation(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *CommerceMetrics) IncConflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

// ObserveEscrowValue adds amount to the deposit or withdraw total.
func (m *CommerceMetrics) ObserveEscrowValue(phase string, amount uint64) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(phase).Add(float64(amount))
}
