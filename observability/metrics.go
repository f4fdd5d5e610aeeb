package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics tracks the JSON-RPC surface. Methods are grouped by their
// namespace prefix (commerce, custody, ledger).
type RPCMetrics struct {
	calls     *prometheus.CounterVec
	failures  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttled *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcMetrics     *RPCMetrics
)

// RPC returns the process-wide registry, registering it on first use.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcMetrics = &RPCMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "rpc",
				Name:      "calls_total",
				Help:      "Dispatched JSON-RPC calls by namespace, method and outcome.",
			}, []string{"namespace", "method", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "rpc",
				Name:      "failures_total",
				Help:      "Failed JSON-RPC calls by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ecom",
				Subsystem: "rpc",
				Name:      "call_duration_seconds",
				Help:      "Handler latency for dispatched JSON-RPC calls.",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			}, []string{"namespace"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ecom",
				Subsystem: "rpc",
				Name:      "throttled_total",
				Help:      "Requests refused before dispatch.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(rpcMetrics.calls, rpcMetrics.failures, rpcMetrics.latency, rpcMetrics.throttled)
	})
	return rpcMetrics
}

// Namespace returns the prefix before the first underscore of a method name.
func Namespace(method string) string {
	ns, _, found := strings.Cut(method, "_")
	if !found || ns == "" {
		return "unknown"
	}
	return ns
}

// ObserveCall records one dispatched call. code is the JSON-RPC error code,
// or 0 on success.
func (m *RPCMetrics) ObserveCall(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	ns := Namespace(method)
	outcome := "ok"
	if code != 0 {
		outcome = "error"
		m.failures.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.calls.WithLabelValues(ns, method, outcome).Inc()
	m.latency.WithLabelValues(ns).Observe(elapsed.Seconds())
}

// Throttled counts a request refused by reason, e.g. "rate_limit".
func (m *RPCMetrics) Throttled(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttled.WithLabelValues(reason).Inc()
}
