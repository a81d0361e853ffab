// Package catalog records committed runs in an optional Postgres
// catalog. Catalog failures never fail a run; callers log and continue.
package catalog

import (
	"context"
	"time"
)

// Run is one committed dataset run as recorded in the catalog.
type Run struct {
	RunID        string
	Namespace    string
	Dataset      string
	Version      string
	Procedure    string
	RowCount     int64
	CellCount    int64
	ByteSize     int64
	Checksum     string
	PrevChecksum string
	URI          string
	CommittedAt  time.Time
}

// Catalog persists dataset and run records.
type Catalog interface {
	// EnsureDataset upserts the dataset row.
	EnsureDataset(ctx context.Context, namespace, dataset, version string) error

	// RecordRun inserts a run record, chaining its checksum to the
	// previous run of the same dataset.
	RecordRun(ctx context.Context, run Run) error

	// LastChecksum returns the checksum of the latest run for the
	// dataset, or "" when none exists.
	LastChecksum(ctx context.Context, namespace, dataset, version string) (string, error)

	Close()
}

// Noop is the catalog used when no DSN is configured.
type Noop struct{}

func (Noop) EnsureDataset(ctx context.Context, namespace, dataset, version string) error {
	return nil
}

func (Noop) RecordRun(ctx context.Context, run Run) error { return nil }

func (Noop) LastChecksum(ctx context.Context, namespace, dataset, version string) (string, error) {
	return "", nil
}

func (Noop) Close() {}
