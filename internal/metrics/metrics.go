// Package metrics exposes Prometheus collectors for the sync engine.
//
// Collectors are registered on the default registry at init and served by the control API
// at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts entity syncs by entity and result (success, failure, skipped).
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenup_sync_runs_total",
			Help: "Entity sync runs by entity and result",
		},
		[]string{"entity", "result"},
	)

	// SyncRows counts remote rows reconciled into the local store.
	SyncRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenup_sync_rows_total",
			Help: "Remote rows reconciled per entity",
		},
		[]string{"entity"},
	)

	// SyncDuration observes entity sync latency.
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listenup_sync_duration_seconds",
			Help:    "Entity sync duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"entity"},
	)

	// SyncLastSuccess is the unix time of the last successful full sync.
	SyncLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listenup_sync_last_success_timestamp",
		Help: "Unix timestamp of the last successful full sync",
	})

	// RetryAttempts counts retries issued by the retry executor, by operation.
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenup_retry_attempts_total",
			Help: "Retries issued for remote operations",
		},
		[]string{"operation"},
	)

	// Mutations counts optimistic mutations by kind and result (committed, rolled_back, rejected).
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenup_mutations_total",
			Help: "Optimistic mutations by kind and result",
		},
		[]string{"kind", "result"},
	)

	// BulkItems counts bulk download/delete item outcomes.
	BulkItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenup_bulk_items_total",
			Help: "Bulk download/delete item outcomes",
		},
		[]string{"operation", "result"},
	)

	// RemoteRequests counts remote calls by resource and outcome.
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenup_remote_requests_total",
			Help: "Remote data service requests by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	// CircuitBreakerState is 0=closed, 1=half-open, 2=open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "listenup_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenup_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Online is 1 while the remote is reachable.
	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listenup_network_online",
		Help: "1 when the remote service is reachable",
	})

	// CacheLookups counts cache reads by entity and result (hit, miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenup_cache_lookups_total",
			Help: "Query cache lookups by entity and result",
		},
		[]string{"entity", "result"},
	)
)

// RecordSync records the outcome of one entity sync.
func RecordSync(entity string, rows int, seconds float64, err error) {
	SyncDuration.WithLabelValues(entity).Observe(seconds)
	if err != nil {
		SyncRuns.WithLabelValues(entity, "failure").Inc()
		return
	}
	SyncRuns.WithLabelValues(entity, "success").Inc()
	SyncRows.WithLabelValues(entity).Add(float64(rows))
}

// RecordBulkItem records one bulk item outcome.
func RecordBulkItem(operation string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	BulkItems.WithLabelValues(operation, result).Inc()
}

// SetOnline mirrors connectivity into the Online gauge.
func SetOnline(online bool) {
	if online {
		Online.Set(1)
		return
	}
	Online.Set(0)
}
