package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// PostgresCatalog records runs in Postgres via pgxpool.
type PostgresCatalog struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresCatalog connects to the catalog database and applies the
// schema. Returns a Noop catalog when dsn is empty.
func NewPostgresCatalog(ctx context.Context, dsn string, connectTimeout time.Duration) (Catalog, error) {
	if dsn == "" {
		return Noop{}, nil
	}
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating catalog pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging catalog database: %w", err)
	}
	if _, err := pool.Exec(connectCtx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying catalog schema: %w", err)
	}

	return &PostgresCatalog{
		pool: pool,
		log:  logging.Component("catalog"),
	}, nil
}

func (c *PostgresCatalog) EnsureDataset(ctx context.Context, namespace, dataset, version string) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO datasets (namespace, dataset, version)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, dataset, version) DO NOTHING`,
		namespace, dataset, version)
	if err != nil {
		return fmt.Errorf("ensuring dataset: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) RecordRun(ctx context.Context, run Run) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO runs (
			run_id, namespace, dataset, version, procedure,
			row_count, cell_count, byte_size,
			checksum, prev_checksum, uri, committed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.RunID, run.Namespace, run.Dataset, run.Version, run.Procedure,
		run.RowCount, run.CellCount, run.ByteSize,
		run.Checksum, run.PrevChecksum, run.URI, run.CommittedAt)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.RunID, err)
	}
	c.log.Info("run recorded in catalog",
		"run_id", run.RunID,
		"dataset", run.Dataset,
		"rows", run.RowCount)
	return nil
}

func (c *PostgresCatalog) LastChecksum(ctx context.Context, namespace, dataset, version string) (string, error) {
	var checksum string
	err := c.pool.QueryRow(ctx, `
		SELECT checksum FROM runs
		WHERE namespace = $1 AND dataset = $2 AND version = $3
		ORDER BY committed_at DESC
		LIMIT 1`,
		namespace, dataset, version).Scan(&checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying last checksum: %w", err)
	}
	return checksum, nil
}

func (c *PostgresCatalog) Close() {
	c.pool.Close()
}
