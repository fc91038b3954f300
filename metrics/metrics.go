// Package metrics exposes Prometheus instrumentation for connections,
// pooled acquisition, and the per-connection statement cache.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueryTotal counts executed queries by protocol (simple/extended) and
	// outcome (ok/error).
	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fkpg_query_total",
			Help: "Total number of queries executed",
		},
		[]string{"protocol", "outcome"},
	)

	// QueryLatency tracks round-trip query latency by protocol.
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fkpg_query_latency_seconds",
			Help:    "Query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)

	// StatementCacheHits counts prepared-statement cache hits (Parse/Describe
	// skipped because the statement was already on the server).
	StatementCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fkpg_statement_cache_hits_total",
			Help: "Total prepared-statement cache hits",
		},
	)

	// StatementCacheMisses counts cache misses requiring a server-side Parse.
	StatementCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fkpg_statement_cache_misses_total",
			Help: "Total prepared-statement cache misses",
		},
	)

	// StatementCacheEvictions counts LRU evictions of cached statements.
	StatementCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fkpg_statement_cache_evictions_total",
			Help: "Total prepared-statement cache evictions",
		},
	)

	// PoolIdleConnections is the current number of idle pooled connections.
	PoolIdleConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fkpg_pool_idle_connections",
			Help: "Current number of idle connections held by the pool",
		},
	)

	// PoolAcquiredConnections is the current number of checked-out connections.
	PoolAcquiredConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fkpg_pool_acquired_connections",
			Help: "Current number of connections checked out of the pool",
		},
	)

	// PoolAcquireLatency tracks time spent blocked in Pool.Acquire.
	PoolAcquireLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fkpg_pool_acquire_latency_seconds",
			Help:    "Time spent acquiring a connection from the pool",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TransactionTotal counts committed and rolled-back transactions.
	TransactionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fkpg_transaction_total",
			Help: "Total transactions by outcome",
		},
		[]string{"outcome"},
	)

	// ConnectionsPoisoned counts connections that left service poisoned by
	// an unrecoverable protocol or I/O error.
	ConnectionsPoisoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fkpg_connections_poisoned_total",
			Help: "Total connections poisoned by an unrecoverable error",
		},
	)

	once sync.Once
)

// Init registers every metric with the default Prometheus registry. Safe to
// call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(QueryLatency)
		prometheus.MustRegister(StatementCacheHits)
		prometheus.MustRegister(StatementCacheMisses)
		prometheus.MustRegister(StatementCacheEvictions)
		prometheus.MustRegister(PoolIdleConnections)
		prometheus.MustRegister(PoolAcquiredConnections)
		prometheus.MustRegister(PoolAcquireLatency)
		prometheus.MustRegister(TransactionTotal)
		prometheus.MustRegister(ConnectionsPoisoned)

		// A vector with no label children is not exported, so create the
		// query series up front to have them on the first scrape.
		for _, protocol := range []string{"simple", "extended"} {
			QueryLatency.WithLabelValues(protocol)
			for _, outcome := range []string{"ok", "error"} {
				QueryTotal.WithLabelValues(protocol, outcome)
			}
		}
	})
}

// Handler returns the Prometheus HTTP handler for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
