package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal tracks finished batches per agent and end status
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_batches_total",
			Help: "Total number of batches run",
		},
		[]string{"agent", "status"},
	)

	// ItemsProcessed tracks inference outcomes per agent
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_items_processed_total",
			Help: "Total number of work items processed, by outcome",
		},
		[]string{"agent", "outcome"},
	)

	// ResultsSaved tracks rows actually inserted (conflicts excluded)
	ResultsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_results_saved_total",
			Help: "Total number of result rows inserted",
		},
		[]string{"agent"},
	)

	// InferenceLatency tracks external inference call latency
	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retention_inference_latency_seconds",
			Help:    "Inference call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent", "outcome"},
	)

	// BatchDuration tracks wall time of one batch
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retention_batch_duration_seconds",
			Help:    "Batch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"agent"},
	)

	// Reconnects tracks database reconnections after a broken connection
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_db_reconnects_total",
			Help: "Total number of database reconnections",
		},
		[]string{"agent"},
	)

	// AuditWriteFailures tracks audit rows that could not be written
	AuditWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_audit_write_failures_total",
			Help: "Total number of failed audit writes",
		},
		[]string{"agent", "sink"},
	)

	// NextCycleDelay is the wait chosen after the last cycle
	NextCycleDelay = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "retention_next_cycle_delay_seconds",
			Help: "Delay before the next cycle in seconds",
		},
		[]string{"agent"},
	)

	// DBBatchSize tracks rows per batched insert
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retention_db_batch_size",
			Help:    "Number of rows per batched insert",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"operation"},
	)

	// DBConnectionPoolUsage is open connections as a percentage of the pool limit
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "retention_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
