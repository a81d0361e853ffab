package bucketize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/buckets"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/sink"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/source"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

func sliceSource(n int) *source.SliceSource {
	rows := make([]source.Row, n)
	for i := range rows {
		rows[i] = source.Row{Name: fmt.Sprintf("row%d", i)}
	}
	return &source.SliceSource{Rows: rows}
}

// countingSink tallies rows without retaining them. With trackNames
// set it also detects duplicate assignments.
type countingSink struct {
	mu         sync.Mutex
	perBucket  map[string]int64
	total      int64
	flushes    int64
	committed  bool
	trackNames bool
	seen       map[string]bool
	duplicates []string
}

func newCountingSink() *countingSink {
	return &countingSink{
		perBucket: make(map[string]int64),
		seen:      make(map[string]bool),
	}
}

func (s *countingSink) RecordRows(ctx context.Context, rows []tables.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return sink.ErrCommitted
	}
	s.flushes++
	for _, r := range rows {
		for _, c := range r.Cells {
			if c.Column == "bucket" {
				s.perBucket[c.Value.Str]++
			}
		}
		if s.trackNames {
			if s.seen[r.Name] {
				s.duplicates = append(s.duplicates, r.Name)
			}
			s.seen[r.Name] = true
		}
	}
	s.total += int64(len(rows))
	return nil
}

func (s *countingSink) Commit(ctx context.Context) (*sink.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return nil, sink.ErrCommitted
	}
	s.committed = true
	return &sink.Status{
		RowCount:    s.total,
		CellCount:   s.total,
		CommittedAt: time.Now().UTC(),
	}, nil
}

func mustEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRunCountsPerBucket(t *testing.T) {
	cfg := Config{
		Buckets: map[string][2]float64{
			"low":  {0, 25},
			"mid":  {25, 75},
			"high": {75, 100},
		},
		Workers: 4,
	}

	for _, n := range []int{0, 1, 7, 1024, 1_000_000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			out := newCountingSink()
			result, err := mustEngine(t, cfg).Run(context.Background(), sliceSource(n), out)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if result.RowCount != int64(n) {
				t.Fatalf("RowCount = %d, want %d", result.RowCount, n)
			}

			// Exact boundaries at 0 and 100 plus shared interior
			// boundaries partition the sequence with no gaps or
			// duplicates.
			var total int64
			for _, c := range out.perBucket {
				total += c
			}
			if total != int64(n) {
				t.Fatalf("assigned %d rows total, want %d", total, n)
			}

			wantLow := int64(float64(25) / 100 * float64(n))
			if n > 0 && out.perBucket["low"] != wantLow {
				t.Fatalf("low bucket = %d, want %d", out.perBucket["low"], wantLow)
			}
			if !result.Validation.Valid {
				t.Fatalf("validation failed: %v", result.Validation.Errors)
			}
		})
	}
}

func TestRunBoundaryPartition(t *testing.T) {
	cfg := Config{
		Buckets: map[string][2]float64{
			"first":  {0, 50},
			"second": {50, 100},
		},
		Workers: 2,
	}
	out := newCountingSink()
	if _, err := mustEngine(t, cfg).Run(context.Background(), sliceSource(10), out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.perBucket["first"] != 5 || out.perBucket["second"] != 5 {
		t.Fatalf("buckets = %v, want 5/5", out.perBucket)
	}
}

func TestRunEmptyBucket(t *testing.T) {
	cfg := Config{
		Buckets: map[string][2]float64{
			"thin": {10, 11},
			"rest": {11, 100},
		},
	}
	out := newCountingSink()
	// 5 rows: [10,11) resolves to an empty interval.
	result, err := mustEngine(t, cfg).Run(context.Background(), sliceSource(5), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.perBucket["thin"] != 0 {
		t.Fatalf("thin bucket = %d, want 0", out.perBucket["thin"])
	}
	if result.Buckets != 2 {
		t.Fatalf("Buckets = %d, want 2", result.Buckets)
	}
}

func TestRunFlushesAndDrains(t *testing.T) {
	cfg := Config{
		Buckets: map[string][2]float64{"all": {0, 100}},
		Workers: 2,
	}
	out := newCountingSink()
	out.trackNames = true
	result, err := mustEngine(t, cfg).Run(context.Background(), sliceSource(2500), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.total != 2500 {
		t.Fatalf("recorded %d rows, want 2500", out.total)
	}
	if len(out.duplicates) != 0 {
		t.Fatalf("duplicate assignments: %v", out.duplicates[:min(len(out.duplicates), 5)])
	}
	if len(out.seen) != 2500 {
		t.Fatalf("distinct rows = %d, want 2500", len(out.seen))
	}
	// 2500 rows across 2 workers with a 1024 threshold needs at least
	// one threshold flush and a drain of the remainders.
	if out.flushes < 2 {
		t.Fatalf("flushes = %d, want at least 2", out.flushes)
	}
	if !out.committed {
		t.Fatal("sink was not committed")
	}
	if !result.Validation.Valid {
		t.Fatalf("validation failed: %v", result.Validation.Errors)
	}
}

func TestRunTimestampPropagation(t *testing.T) {
	newest := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &source.SliceSource{Rows: []source.Row{
		{Name: "a", SortTime: newest.Add(-time.Hour)},
		{Name: "b", SortTime: newest},
		{Name: "c"},
	}}

	cfg := Config{Buckets: map[string][2]float64{"all": {0, 100}}}
	out := sink.NewMemorySink()
	if _, err := mustEngine(t, cfg).Run(context.Background(), src, out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, row := range out.Rows() {
		for _, cell := range row.Cells {
			if !cell.At.Equal(newest) {
				t.Fatalf("row %s cell timestamp = %v, want %v", row.Name, cell.At, newest)
			}
		}
	}
}

func TestRunZeroTimestampsStayZero(t *testing.T) {
	src := &source.SliceSource{Rows: []source.Row{{Name: "a"}, {Name: "b"}}}
	cfg := Config{Buckets: map[string][2]float64{"all": {0, 100}}}
	out := sink.NewMemorySink()
	if _, err := mustEngine(t, cfg).Run(context.Background(), src, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, row := range out.Rows() {
		for _, cell := range row.Cells {
			if !cell.At.IsZero() {
				t.Fatalf("cell timestamp = %v, want zero", cell.At)
			}
		}
	}
}

func TestNewRejectsOverlap(t *testing.T) {
	_, err := New(Config{Buckets: map[string][2]float64{
		"a": {0, 60},
		"b": {40, 100},
	}})
	if !errors.Is(err, buckets.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(Config{})
	if !errors.Is(err, buckets.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

// failingSink returns an error on the first record call.
type failingSink struct {
	countingSink
	failed bool
}

func (s *failingSink) RecordRows(ctx context.Context, rows []tables.Row) error {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
	return errors.New("disk full")
}

func TestRunAbortsOnSinkError(t *testing.T) {
	cfg := Config{
		Buckets:        map[string][2]float64{"all": {0, 100}},
		FlushThreshold: 8,
	}
	out := &failingSink{}
	_, err := mustEngine(t, cfg).Run(context.Background(), sliceSource(100), out)
	if err == nil {
		t.Fatal("expected error from failing sink")
	}
	if out.committed {
		t.Fatal("sink must not be committed after a record failure")
	}
}
