// Package source streams externally ordered rows into the bucketization
// pipeline. Ordering is established upstream (the file order of the
// input is the rank order); sources never re-sort.
package source

import (
	"context"
	"errors"
	"time"
)

// Row is one externally ordered row.
type Row struct {
	// Name is the row identifier.
	Name string

	// SortTime is the timestamp carried by the row's sort key.
	// The zero time means the sort key carried no date.
	SortTime time.Time
}

// RowSource streams rows in their externally determined rank order.
type RowSource interface {
	Stream(ctx context.Context) (<-chan Row, <-chan error)
	Close() error
}

// Config configures a row source.
type Config struct {
	// Format is "ndjson" or "parquet".
	Format string `yaml:"format"`

	// Path is a local file path or a gs:// / s3:// object URL.
	// NDJSON inputs may be gzip (.gz) or zstd (.zst) compressed.
	Path string `yaml:"path"`

	// NameField is the field holding the row identifier.
	// Defaults to "row_name".
	NameField string `yaml:"name_field"`

	// TimeField is the field holding the sort-key timestamp, if any.
	// Defaults to "sort_ts".
	TimeField string `yaml:"time_field"`
}

var ErrInvalidSourceFormat = errors.New("invalid source format")

// NewRowSource constructs a row source based on the configured format.
func NewRowSource(cfg Config) (RowSource, error) {
	if cfg.NameField == "" {
		cfg.NameField = "row_name"
	}
	if cfg.TimeField == "" {
		cfg.TimeField = "sort_ts"
	}

	switch cfg.Format {
	case "ndjson":
		return newNDJSONSource(cfg), nil
	case "parquet":
		return newParquetSource(cfg), nil
	default:
		return nil, ErrInvalidSourceFormat
	}
}
