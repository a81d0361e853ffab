// Package bucketize assigns percentile buckets to an externally ranked
// sequence of rows and records the assignments through a sink.
package bucketize

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/buckets"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/logging"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/metrics"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/rank"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/sink"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/source"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

// Version information, set at build time.
var (
	Version = "dev"
	GitSHA  = "unknown"
)

// Config configures a bucketization run.
type Config struct {
	// Buckets maps labels to [start, end) percentile ranges.
	Buckets map[string][2]float64

	// Workers is the fan-out width. Zero means GOMAXPROCS.
	Workers int

	// FlushThreshold is the per-worker buffer size that triggers a
	// flush. Zero means 1024.
	FlushThreshold int

	// Labels tags metric samples for this run.
	Labels metrics.Labels
}

// Result summarizes a completed bucketization run.
type Result struct {
	RowCount   int64
	Buckets    int
	Status     *sink.Status
	Validation *ValidationResult
	Elapsed    time.Duration
}

// Engine runs bucketization.
type Engine struct {
	cfg Config
	log *slog.Logger
	met *metrics.Metrics
}

// New creates an engine after validating the bucket configuration.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Buckets) == 0 {
		return nil, fmt.Errorf("%w: no percentile buckets configured", buckets.ErrConfiguration)
	}
	if err := buckets.Validate(buckets.FromConfig(cfg.Buckets)); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 1024
	}
	return &Engine{
		cfg: cfg,
		log: logging.Component("bucketize"),
		met: metrics.Get(),
	}, nil
}

// Run ranks the source, assigns every configured bucket over the ranked
// sequence, drains the accumulated rows and commits the sink.
func (e *Engine) Run(ctx context.Context, src source.RowSource, out sink.Sink) (*Result, error) {
	started := time.Now()
	lv := e.cfg.Labels.Values()

	seq, err := rank.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	rowCount := seq.Len()
	repTime := seq.RepresentativeTime()

	ranges := buckets.FromConfig(e.cfg.Buckets)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	e.log.Info("starting bucketization",
		"rows", rowCount,
		"buckets", len(ranges),
		"workers", e.cfg.Workers,
		"flush_threshold", e.cfg.FlushThreshold)

	acc := newAccumulator(e.cfg.Workers, e.cfg.FlushThreshold, out, e.met, e.cfg.Labels)

	var assigned int64
	for _, rng := range ranges {
		iv, err := rng.Resolve(rowCount)
		if err != nil {
			return nil, err
		}

		// One shared cell slice per bucket; rows in the same bucket
		// carry the same assignment.
		cells := []tables.Cell{{
			Column: "bucket",
			Value:  tables.String(rng.Label),
			At:     repTime,
		}}

		err = parallelFor(ctx, e.cfg.Workers, iv.Lower, iv.Upper,
			func(ctx context.Context, worker int, i int64) error {
				return acc.record(ctx, worker, tables.Row{
					Name:  seq.Name(i),
					Cells: cells,
				})
			})
		if err != nil {
			e.met.SinkErrors.WithLabelValues(lv...).Inc()
			return nil, fmt.Errorf("bucket %q: %w", rng.Label, err)
		}

		assigned += iv.Len()
		e.met.BucketsProcessed.WithLabelValues(lv...).Inc()
		e.log.Debug("bucket assigned",
			"label", rng.Label,
			"lower", iv.Lower,
			"upper", iv.Upper,
			"rows", iv.Len())
	}

	if err := acc.drain(ctx); err != nil {
		e.met.SinkErrors.WithLabelValues(lv...).Inc()
		return nil, fmt.Errorf("draining accumulator: %w", err)
	}

	commitStart := time.Now()
	status, err := out.Commit(ctx)
	if err != nil {
		e.met.SinkErrors.WithLabelValues(lv...).Inc()
		return nil, fmt.Errorf("committing sink: %w", err)
	}
	e.met.CommitDuration.WithLabelValues(lv...).
		Observe(time.Since(commitStart).Seconds())
	e.met.RowsBucketized.WithLabelValues(lv...).
		Add(float64(assigned))

	elapsed := time.Since(started)
	e.met.ObserveRun(e.cfg.Labels, assigned, elapsed)

	result := &Result{
		RowCount:   rowCount,
		Buckets:    len(ranges),
		Status:     status,
		Validation: ValidateRun(status, assigned),
		Elapsed:    elapsed,
	}

	e.log.Info("bucketization complete",
		"rows", rowCount,
		"assigned", assigned,
		"buckets", len(ranges),
		"valid", result.Validation.Valid,
		"elapsed", elapsed.String())
	return result, nil
}
