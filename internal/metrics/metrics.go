// Package metrics exposes prometheus instrumentation for bucketizer
// runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bucketizer"

// Labels identifies the run a metric sample belongs to.
type Labels struct {
	Procedure string
	Dataset   string
	Backend   string
}

// Values returns the label values in registration order.
func (l Labels) Values() []string {
	return []string{l.Procedure, l.Dataset, l.Backend}
}

var labelNames = []string{"procedure", "dataset", "backend"}

// Metrics holds all collectors registered by the bucketizer.
type Metrics struct {
	RowsBucketized   *prometheus.CounterVec
	BucketsProcessed *prometheus.CounterVec
	FlushesTotal     *prometheus.CounterVec
	ImportedLines    *prometheus.CounterVec
	LineErrors       *prometheus.CounterVec
	SinkErrors       *prometheus.CounterVec
	CatalogErrors    *prometheus.CounterVec
	NotifyErrors     *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	CommitDuration   *prometheus.HistogramVec
	RowsPerSecond    *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	global   *Metrics
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() *Metrics {
	initOnce.Do(func() {
		global = &Metrics{
			RowsBucketized: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_bucketized_total",
				Help:      "Rows assigned to a bucket.",
			}, labelNames),
			BucketsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buckets_processed_total",
				Help:      "Percentile buckets fully processed.",
			}, labelNames),
			FlushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accumulator_flushes_total",
				Help:      "Worker buffer flushes to the sink.",
			}, labelNames),
			ImportedLines: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_lines_total",
				Help:      "Input lines converted to rows by the importer.",
			}, labelNames),
			LineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "line_errors_total",
				Help:      "Input lines skipped because they failed to parse.",
			}, labelNames),
			SinkErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Errors returned by the output sink.",
			}, labelNames),
			CatalogErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Errors recording runs in the catalog.",
			}, labelNames),
			NotifyErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notify_errors_total",
				Help:      "Errors emitting run events.",
			}, labelNames),
			RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "End to end run duration.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			}, labelNames),
			CommitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "commit_duration_seconds",
				Help:      "Sink commit duration.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			}, labelNames),
			RowsPerSecond: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rows_per_second",
				Help:      "Row throughput of the last run.",
			}, labelNames),
		}
	})
	return global
}

// Get returns the registered metrics, initializing them if needed.
func Get() *Metrics {
	return Init()
}

// ObserveRun records the duration and throughput of a completed run.
func (m *Metrics) ObserveRun(l Labels, rows int64, elapsed time.Duration) {
	m.RunDuration.WithLabelValues(l.Values()...).Observe(elapsed.Seconds())
	if secs := elapsed.Seconds(); secs > 0 {
		m.RowsPerSecond.WithLabelValues(l.Values()...).Set(float64(rows) / secs)
	}
}

// StartServer serves the metrics endpoint until ctx is cancelled.
func StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
