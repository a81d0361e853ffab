package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/logging"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/storage"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

// ParquetSink accumulates cell rows in memory and publishes a single
// parquet file plus manifest on Commit. When the store supports atomic
// publishes the payload is staged and finalized in one step.
type ParquetSink struct {
	cfg   Config
	store storage.Store
	log   *slog.Logger

	producer storage.ProducerInfo

	mu        sync.Mutex
	cellRows  []tables.CellRow
	rowCount  int64
	committed bool
	status    *Status
}

// NewParquetSink creates a sink publishing to the given store.
func NewParquetSink(cfg Config, store storage.Store, producer storage.ProducerInfo) *ParquetSink {
	return &ParquetSink{
		cfg:      cfg,
		store:    store,
		producer: producer,
		log:      logging.Component("sink"),
	}
}

// RecordRows flattens and buffers a batch. Safe for concurrent use.
func (s *ParquetSink) RecordRows(ctx context.Context, rows []tables.Row) error {
	if len(rows) == 0 {
		return nil
	}
	cellRows := tables.ToCellRows(rows, s.parquetConfig(), time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return ErrCommitted
	}
	s.cellRows = append(s.cellRows, cellRows...)
	s.rowCount += int64(len(rows))
	return nil
}

// Commit encodes the buffered cells, writes the parquet payload and its
// manifest, and returns the run status. Commit is terminal.
func (s *ParquetSink) Commit(ctx context.Context) (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return nil, ErrCommitted
	}

	data, err := tables.ToParquet(s.cellRows, s.parquetConfig())
	if err != nil {
		return nil, fmt.Errorf("encoding parquet payload: %w", err)
	}
	checksum := tables.Checksum(data)

	ref := s.ref()
	manifest := &storage.Manifest{
		Dataset: storage.DatasetInfo{
			Namespace: s.cfg.Namespace,
			Dataset:   s.cfg.Dataset,
			Version:   s.cfg.DatasetVersion,
			RunID:     s.cfg.RunID,
			Procedure: s.cfg.Procedure,
		},
		Tables: map[string]storage.TableInfo{
			s.cfg.Table: {
				File:     "part-0.parquet",
				Checksum: checksum,
				RowCount: int64(len(s.cellRows)),
				ByteSize: int64(len(data)),
			},
		},
		Producer:  s.producer,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.publish(ctx, ref, data, manifest); err != nil {
		return nil, err
	}

	s.committed = true
	s.status = &Status{
		RunID:       s.cfg.RunID,
		RowCount:    s.rowCount,
		CellCount:   int64(len(s.cellRows)),
		ByteSize:    int64(len(data)),
		Checksum:    checksum,
		URI:         s.store.URI(ref.Path("")),
		CommittedAt: time.Now().UTC(),
	}
	s.cellRows = nil

	s.log.Info("run committed",
		"run_id", s.status.RunID,
		"rows", s.status.RowCount,
		"cells", s.status.CellCount,
		"bytes", s.status.ByteSize,
		"uri", s.status.URI)
	return s.status, nil
}

// Status returns the committed run status.
func (s *ParquetSink) Status() (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.committed {
		return nil, ErrNotCommitted
	}
	return s.status, nil
}

func (s *ParquetSink) publish(ctx context.Context, ref storage.DatasetRef, data []byte, manifest *storage.Manifest) error {
	atomic := storage.AsAtomic(s.store)
	if atomic == nil {
		if err := s.store.WriteParquet(ctx, ref, data); err != nil {
			return fmt.Errorf("writing parquet: %w", err)
		}
		if err := s.store.WriteManifest(ctx, ref, manifest); err != nil {
			return fmt.Errorf("writing manifest: %w", err)
		}
		return nil
	}

	parquetTemp, err := atomic.WriteParquetTemp(ctx, ref, data)
	if err != nil {
		return fmt.Errorf("staging parquet: %w", err)
	}
	manifestTemp, err := atomic.WriteManifestTemp(ctx, ref, manifest)
	if err != nil {
		atomic.Abort(ctx, []string{parquetTemp})
		return fmt.Errorf("staging manifest: %w", err)
	}

	tempKeys := []string{parquetTemp, manifestTemp}
	if err := atomic.Finalize(ctx, ref, tempKeys); err != nil {
		atomic.Abort(ctx, tempKeys)
		return fmt.Errorf("finalizing run: %w", err)
	}
	return nil
}

func (s *ParquetSink) ref() storage.DatasetRef {
	return storage.DatasetRef{
		Namespace: s.cfg.Namespace,
		Dataset:   s.cfg.Dataset,
		Version:   s.cfg.DatasetVersion,
		Table:     s.cfg.Table,
		RunID:     s.cfg.RunID,
	}
}

func (s *ParquetSink) parquetConfig() tables.ParquetConfig {
	return tables.ParquetConfig{
		Dataset:        s.cfg.Dataset,
		DatasetVersion: s.cfg.DatasetVersion,
		RunID:          s.cfg.RunID,
		Compression:    s.cfg.Compression,
	}
}
