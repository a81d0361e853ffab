package sink

import (
	"context"
	"sync"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

// MemorySink keeps recorded rows in memory. Used by tests and dry runs.
type MemorySink struct {
	mu        sync.Mutex
	rows      []tables.Row
	committed bool

	// RecordErr, when set, is returned by the next RecordRows call.
	RecordErr error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) RecordRows(ctx context.Context, rows []tables.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return ErrCommitted
	}
	if s.RecordErr != nil {
		return s.RecordErr
	}
	for _, r := range rows {
		cells := make([]tables.Cell, len(r.Cells))
		copy(cells, r.Cells)
		s.rows = append(s.rows, tables.Row{Name: r.Name, Cells: cells})
	}
	return nil
}

func (s *MemorySink) Commit(ctx context.Context) (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return nil, ErrCommitted
	}
	s.committed = true

	var cells int64
	for _, r := range s.rows {
		cells += int64(len(r.Cells))
	}
	return &Status{
		RowCount:    int64(len(s.rows)),
		CellCount:   cells,
		CommittedAt: time.Now().UTC(),
	}, nil
}

// Rows returns a snapshot of everything recorded so far.
func (s *MemorySink) Rows() []tables.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tables.Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// Committed reports whether Commit has been called.
func (s *MemorySink) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}
