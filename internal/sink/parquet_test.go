package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/storage"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

func testSink(t *testing.T) (*ParquetSink, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		Namespace:      "testns",
		Dataset:        "events",
		DatasetVersion: "v1",
		Table:          "cells",
		RunID:          "run-123",
		Compression:    "snappy",
		Procedure:      "bucketize",
	}
	producer := storage.ProducerInfo{Name: "obsrvr-bucketizer", Version: "test"}
	return NewParquetSink(cfg, store, producer), dir
}

func sampleRows(at time.Time) []tables.Row {
	return []tables.Row{
		{Name: "row1", Cells: []tables.Cell{
			{Column: "bucket", Value: tables.String("low"), At: at},
		}},
		{Name: "row2", Cells: []tables.Cell{
			{Column: "bucket", Value: tables.String("high"), At: at},
		}},
	}
}

func TestParquetSinkCommitRoundTrip(t *testing.T) {
	s, dir := testSink(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := s.RecordRows(ctx, sampleRows(at)); err != nil {
		t.Fatalf("RecordRows: %v", err)
	}
	status, err := s.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if status.RowCount != 2 || status.CellCount != 2 {
		t.Fatalf("status = %+v, want 2 rows, 2 cells", status)
	}

	path := filepath.Join(dir, "testns/events/v1/cells/run=run-123/part-0.parquet")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading committed parquet: %v", err)
	}
	if !tables.VerifyChecksum(data, status.Checksum) {
		t.Fatal("checksum does not match committed payload")
	}

	cellRows, err := tables.ReadParquet(data)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(cellRows) != 2 {
		t.Fatalf("got %d cell rows, want 2", len(cellRows))
	}
	if cellRows[0].RowName != "row1" || cellRows[0].StringValue != "low" {
		t.Fatalf("first cell row = %+v", cellRows[0])
	}
	if cellRows[0].ValueTS != at.UnixMilli() {
		t.Fatalf("value_ts = %d, want %d", cellRows[0].ValueTS, at.UnixMilli())
	}

	manifestPath := filepath.Join(dir, "testns/events/v1/cells/run=run-123/_manifest.json")
	if _, err := os.Stat(manifestPath); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
}

func TestParquetSinkCommitIsTerminal(t *testing.T) {
	s, _ := testSink(t)
	ctx := context.Background()

	if _, err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.RecordRows(ctx, sampleRows(time.Now())); !errors.Is(err, ErrCommitted) {
		t.Fatalf("RecordRows after commit = %v, want ErrCommitted", err)
	}
	if _, err := s.Commit(ctx); !errors.Is(err, ErrCommitted) {
		t.Fatalf("second Commit = %v, want ErrCommitted", err)
	}
}

func TestParquetSinkEmptyCommit(t *testing.T) {
	s, dir := testSink(t)
	status, err := s.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if status.RowCount != 0 || status.CellCount != 0 {
		t.Fatalf("status = %+v, want empty", status)
	}
	path := filepath.Join(dir, "testns/events/v1/cells/run=run-123/part-0.parquet")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("empty run must still publish a parquet file: %v", err)
	}
}

func TestMemorySinkCopiesBatches(t *testing.T) {
	s := NewMemorySink()
	batch := sampleRows(time.Now())
	if err := s.RecordRows(context.Background(), batch); err != nil {
		t.Fatalf("RecordRows: %v", err)
	}

	// Caller reuses the batch; the sink must hold its own copy.
	batch[0].Cells[0] = tables.Cell{Column: "bucket", Value: tables.String("mutated")}

	rows := s.Rows()
	if rows[0].Cells[0].Value.Str != "low" {
		t.Fatalf("sink saw caller mutation: %+v", rows[0].Cells[0])
	}
}
