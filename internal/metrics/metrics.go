package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttemptsTotal tracks retry engine outcomes per operation
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_retry_attempts_total",
			Help: "Retry engine events by operation and outcome (retry, success, failure)",
		},
		[]string{"operation", "outcome"},
	)

	// RPCCallsTotal tracks JSON-RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks JSON-RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batcher_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// RPCFallbackTotal counts dual-source reads by the source that answered
	RPCFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_rpc_source_total",
			Help: "Dual-source reads by accessor and answering source (primary, fallback, none)",
		},
		[]string{"accessor", "source"},
	)

	// SinkSendsTotal tracks outbound socket frames
	SinkSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_sink_sends_total",
			Help: "Outbound socket sends by mode (message, response) and result",
		},
		[]string{"mode", "result"},
	)

	// BatchesCommitted counts committed batches
	BatchesCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batcher_batches_committed_total",
			Help: "Total number of committed batches",
		},
	)

	// BatchSizeBytes tracks serialized batch sizes
	BatchSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batcher_batch_size_bytes",
			Help:    "Serialized batch size in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 9),
		},
	)

	// BatchVerificationsTotal tracks foreign entry point verifications
	BatchVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_batch_verifications_total",
			Help: "Batch root verifications by result (match, mismatch, invalid)",
		},
		[]string{"result"},
	)

	// GasPriceWei holds the last observed gas price
	GasPriceWei = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batcher_gas_price_wei",
			Help: "Last gas price read from the backend",
		},
	)

	// DBConnectionPoolUsage tracks archive connection pool usage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batcher_db_connection_pool_usage_percent",
			Help: "Archive database connection pool usage percentage",
		},
	)
)
