// Package sink receives bucketized rows and publishes them as a
// committed dataset run.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

var (
	// ErrCommitted is returned when rows are recorded after Commit.
	ErrCommitted = errors.New("sink already committed")

	// ErrNotCommitted is returned when Status is requested before Commit.
	ErrNotCommitted = errors.New("sink not committed")
)

// Sink accepts row batches from concurrent workers. RecordRows may be
// called from multiple goroutines; Commit is called exactly once after
// all recording has finished. Batches are reused by callers, so sinks
// must copy what they keep.
type Sink interface {
	RecordRows(ctx context.Context, rows []tables.Row) error
	Commit(ctx context.Context) (*Status, error)
}

// Status summarizes a committed run.
type Status struct {
	RunID       string    `json:"run_id"`
	RowCount    int64     `json:"row_count"`
	CellCount   int64     `json:"cell_count"`
	ByteSize    int64     `json:"byte_size"`
	Checksum    string    `json:"checksum"`
	URI         string    `json:"uri"`
	CommittedAt time.Time `json:"committed_at"`
}

// Config describes the dataset a sink publishes.
type Config struct {
	Namespace      string
	Dataset        string
	DatasetVersion string
	Table          string
	RunID          string
	Compression    string
	Procedure      string
}
