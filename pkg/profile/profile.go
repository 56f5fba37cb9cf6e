// Package profile declares the Prometheus counters and histograms that
// pkg/wire records each dispatched operation against; the §6
// "profile"/"getProfile" operations themselves live in pkg/wire. Grounded on
// cuemby-warren/pkg/metrics/metrics.go's package-level vector
// declarations plus init-time MustRegister, and its Timer helper.
package profile

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfdb_operations_total",
			Help: "Total number of operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfdb_operation_duration_seconds",
			Help:    "Operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfdb_commit_duration_seconds",
			Help:    "Multi-shard transaction commit duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ShardsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfdb_shards_active",
			Help: "Number of currently mounted shards",
		},
	)

	WatchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfdb_watches_active",
			Help: "Number of currently armed watches",
		},
	)

	SearchCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfdb_search_cache_hits_total",
			Help: "Total number of search cursor cache hits",
		},
	)

	SearchCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfdb_search_cache_misses_total",
			Help: "Total number of search cursor cache misses",
		},
	)

	QuotaBytesUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfdb_quota_bytes_used",
			Help: "Bytes of quota currently charged, by owner",
		},
		[]string{"owner"},
	)

	IndexInconsistencies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfdb_index_inconsistencies_total",
			Help: "Total number of index entries found referencing a missing primary record, by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		CommitDuration,
		ShardsActive,
		WatchesActive,
		SearchCacheHits,
		SearchCacheMisses,
		QuotaBytesUsed,
		IndexInconsistencies,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration from construction to
// Duration/ObserveOp.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveOp records op's outcome and duration in one call, matching the
// shape every wire-dispatched operation in pkg/wire reports with.
func (t *Timer) ObserveOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	OperationsTotal.WithLabelValues(op, outcome).Inc()
	OperationDuration.WithLabelValues(op).Observe(t.Duration().Seconds())
}
