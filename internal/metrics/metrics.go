package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts transport attempts by operation and outcome class
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_gql_attempts_total",
			Help: "Total number of GraphQL transport attempts",
		},
		[]string{"operation", "class"},
	)

	// AttemptLatency tracks transport round-trip time
	AttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_gql_attempt_latency_seconds",
			Help:    "GraphQL attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RetriesScheduled counts delayed re-issues
	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_gql_retries_scheduled_total",
			Help: "Total number of retries scheduled by the retry coordinator",
		},
		[]string{"operation", "class"},
	)

	// TerminalFailures counts operations that gave up, by final class
	TerminalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_gql_terminal_failures_total",
			Help: "Total number of operations that failed terminally",
		},
		[]string{"operation", "class"},
	)

	// CacheInvalidations counts result cache resets by trigger
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cache_invalidations_total",
			Help: "Total number of result cache invalidations",
		},
		[]string{"trigger"},
	)

	// CacheLookups counts result cache reads by result (hit, miss, error)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cache_lookups_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"result"},
	)

	// RetryStateEntries is the size of the retry state map
	RetryStateEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_retry_state_entries",
			Help: "Number of operation identities currently holding retry state",
		},
	)

	// RetryStateSwept counts entries removed by the stale sweeper
	RetryStateSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_retry_state_swept_total",
			Help: "Total number of stale retry state entries removed",
		},
	)

	// LifecycleTransitions counts host lifecycle transitions observed
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_lifecycle_transitions_total",
			Help: "Total number of host lifecycle transitions observed",
		},
		[]string{"from", "to"},
	)

	// DBConnectionsUsage tracks SQL cache connection pool usage
	DBConnectionsUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_db_connections_usage_percent",
			Help: "Percentage of open SQL connections relative to the pool limit",
		},
	)
)
