package bucketize

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/metrics"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/sink"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

// accumulator buffers rows per worker and flushes full buffers to the
// sink. Buffers persist across buckets and are drained exactly once at
// the end of the run. Each buffer is owned by a single worker index, so
// record needs no locking.
type accumulator struct {
	threshold int
	out       sink.Sink
	buffers   [][]tables.Row

	met    *metrics.Metrics
	labels metrics.Labels
}

func newAccumulator(workers, threshold int, out sink.Sink, met *metrics.Metrics, labels metrics.Labels) *accumulator {
	buffers := make([][]tables.Row, workers)
	for i := range buffers {
		buffers[i] = make([]tables.Row, 0, threshold)
	}
	return &accumulator{
		threshold: threshold,
		out:       out,
		buffers:   buffers,
		met:       met,
		labels:    labels,
	}
}

func (a *accumulator) record(ctx context.Context, worker int, row tables.Row) error {
	a.buffers[worker] = append(a.buffers[worker], row)
	if len(a.buffers[worker]) >= a.threshold {
		return a.flush(ctx, worker)
	}
	return nil
}

// flush hands the worker's buffer to the sink and reuses the backing
// array. Sinks copy what they keep.
func (a *accumulator) flush(ctx context.Context, worker int) error {
	buf := a.buffers[worker]
	if len(buf) == 0 {
		return nil
	}
	if err := a.out.RecordRows(ctx, buf); err != nil {
		return err
	}
	a.buffers[worker] = buf[:0]
	a.met.FlushesTotal.WithLabelValues(a.labels.Values()...).Inc()
	return nil
}

func (a *accumulator) drain(ctx context.Context) error {
	for worker := range a.buffers {
		if err := a.flush(ctx, worker); err != nil {
			return err
		}
	}
	return nil
}

// parallelFor splits [lower, upper) into contiguous chunks, one per
// worker, and invokes fn with the worker index that owns each rank.
// The first error cancels the remaining work.
func parallelFor(ctx context.Context, workers int, lower, upper int64, fn func(ctx context.Context, worker int, i int64) error) error {
	span := upper - lower
	if span <= 0 {
		return nil
	}
	if int64(workers) > span {
		workers = int(span)
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := span / int64(workers)
	rem := span % int64(workers)

	next := lower
	for w := 0; w < workers; w++ {
		size := chunk
		if int64(w) < rem {
			size++
		}
		lo, hi := next, next+size
		next = hi

		worker := w
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(ctx, worker, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
