package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Bucket metrics
	BucketRollovers       *prometheus.CounterVec
	BucketCounterFailures *prometheus.CounterVec

	// Consistency metrics
	InconsistentState *prometheus.CounterVec
	DuplicateRows     *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewMetrics creates Prometheus metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasets_operations_total",
				Help: "Total number of catalog operations processed",
			},
			[]string{"operation", "status"},
		),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datasets_operation_duration_seconds",
				Help:    "Duration of catalog operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		BucketRollovers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasets_bucket_rollovers_total",
				Help: "Total number of buckets created for new writes",
			},
			[]string{"purpose"},
		),

		BucketCounterFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasets_bucket_counter_failures_total",
				Help: "Total number of failed best-effort bucket counter updates",
			},
			[]string{"purpose", "direction"},
		),

		InconsistentState: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasets_inconsistent_state_total",
				Help: "Total number of logged inconsistent state warnings",
			},
			[]string{"kind"},
		),

		DuplicateRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasets_duplicate_rows_total",
				Help: "Total number of duplicate rows found across buckets during removal",
			},
			[]string{"purpose"},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "datasets_cache_hits_total",
				Help: "Total number of data set cache hits",
			},
		),

		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "datasets_cache_misses_total",
				Help: "Total number of data set cache misses",
			},
		),
	}
}

// RecordOperation records an operation outcome and its duration
func (m *Metrics) RecordOperation(operation, status string, duration float64) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRollover records a new bucket for purpose
func (m *Metrics) RecordRollover(purpose string) {
	m.BucketRollovers.WithLabelValues(purpose).Inc()
}

// RecordCounterFailure records a failed counter update
func (m *Metrics) RecordCounterFailure(purpose, direction string) {
	m.BucketCounterFailures.WithLabelValues(purpose, direction).Inc()
	m.InconsistentState.WithLabelValues("counter_update").Inc()
}

// RecordInconsistentState records a logged inconsistency
func (m *Metrics) RecordInconsistentState(kind string) {
	m.InconsistentState.WithLabelValues(kind).Inc()
}

// RecordDuplicateRows records ghost rows found across buckets
func (m *Metrics) RecordDuplicateRows(purpose string, count int) {
	m.DuplicateRows.WithLabelValues(purpose).Add(float64(count))
	m.InconsistentState.WithLabelValues("duplicate_rows").Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}
