// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Commit metrics
	CommitsCreated prometheus.Counter
	CommitErrors   *prometheus.CounterVec

	// Reveal metrics
	RevealsTotal           *prometheus.CounterVec
	CommitmentMismatches   prometheus.Counter
	EntropyEntriesAppended prometheus.Counter
	EntropyLogSize         prometheus.Gauge

	// Extraction metrics
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionWindow   prometheus.Gauge
	BeaconFetchesTotal *prometheus.CounterVec

	// Feed metrics
	FeedRequestLatency *prometheus.HistogramVec
	FeedErrors         *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCommit  prometheus.Gauge
	LastSuccessfulReveal  prometheus.Gauge
	LastSuccessfulExtract prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_entropy_lab"
	}

	return &Metrics{
		// Commit metrics
		CommitsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "rounds_created_total",
			Help:      "Total number of commitment rounds created",
		}),
		CommitErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "errors_total",
			Help:      "Total number of commit errors by type",
		}, []string{"error_type"}),

		// Reveal metrics
		RevealsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reveal",
			Name:      "rounds_total",
			Help:      "Total number of reveals by result",
		}, []string{"result"}),
		CommitmentMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reveal",
			Name:      "commitment_mismatches_total",
			Help:      "Total number of reveals rejected for hash mismatch",
		}),
		EntropyEntriesAppended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reveal",
			Name:      "entropy_entries_appended_total",
			Help:      "Total number of entries appended to the entropy log",
		}),
		EntropyLogSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reveal",
			Name:      "entropy_log_size",
			Help:      "Current number of entries in the entropy log",
		}),

		// Extraction metrics
		ExtractionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "runs_total",
			Help:      "Total number of extraction runs by seed mode",
		}, []string{"seed_mode"}),
		ExtractionWindow: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "effective_window",
			Help:      "Effective symbol window of the last extraction run",
		}),
		BeaconFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "beacon_fetches_total",
			Help:      "Total number of randomness beacon fetches by status",
		}, []string{"status"}),

		// Feed metrics
		FeedRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "datafeed",
			Name:      "request_latency_seconds",
			Help:      "Data feed request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		FeedErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datafeed",
			Name:      "errors_total",
			Help:      "Total number of data feed errors",
		}, []string{"provider", "operation"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCommit: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_commit_timestamp",
			Help:      "Unix timestamp of last successful commit run",
		}),
		LastSuccessfulReveal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_reveal_timestamp",
			Help:      "Unix timestamp of last successful reveal run",
		}),
		LastSuccessfulExtract: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_extract_timestamp",
			Help:      "Unix timestamp of last successful extraction run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCommit increments the commits created counter.
func RecordCommit() {
	DefaultMetrics.CommitsCreated.Inc()
}

// RecordCommitError records a commit error by type.
func RecordCommitError(errorType string) {
	DefaultMetrics.CommitErrors.WithLabelValues(errorType).Inc()
}

// RecordReveal records a reveal by result ("revealed", "rejected",
// "duplicate", "error").
func RecordReveal(result string) {
	DefaultMetrics.RevealsTotal.WithLabelValues(result).Inc()
	if result == "rejected" {
		DefaultMetrics.CommitmentMismatches.Inc()
	}
}

// RecordEntropyAppend increments the append counter and updates the log
// size gauge.
func RecordEntropyAppend(logSize int) {
	DefaultMetrics.EntropyEntriesAppended.Inc()
	DefaultMetrics.EntropyLogSize.Set(float64(logSize))
}

// RecordExtraction records an extraction run.
func RecordExtraction(seedMode string, effectiveWindow int) {
	DefaultMetrics.ExtractionsTotal.WithLabelValues(seedMode).Inc()
	DefaultMetrics.ExtractionWindow.Set(float64(effectiveWindow))
}

// RecordBeaconFetch records a beacon fetch outcome ("ok" or "fallback").
func RecordBeaconFetch(status string) {
	DefaultMetrics.BeaconFetchesTotal.WithLabelValues(status).Inc()
}

// RecordFeedRequest records feed request metrics.
func RecordFeedRequest(provider, operation string, seconds float64, err error) {
	DefaultMetrics.FeedRequestLatency.WithLabelValues(provider, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.FeedErrors.WithLabelValues(provider, operation).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
