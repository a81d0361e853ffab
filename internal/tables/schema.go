package tables

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Cell is one (column, value, timestamp) entry within a row.
type Cell struct {
	Column string
	Value  Value
	At     time.Time
}

// Row is a named row of sparse cells, the unit recorded to a sink.
// Batches handed to a sink are reused by the caller after the call
// returns; sinks must copy what they keep.
type Row struct {
	Name  string
	Cells []Cell
}

// CellRow is the long-format parquet representation: one parquet row
// per cell. The value payload columns are populated per value_kind.
type CellRow struct {
	// Identity
	RowName string `parquet:"row_name,zstd"`
	Column  string `parquet:"column,zstd"`

	// Tagged value payload
	ValueKind   int32   `parquet:"value_kind"`
	BoolValue   bool    `parquet:"bool_value"`
	IntValue    int64   `parquet:"int_value"`
	DoubleValue float64 `parquet:"double_value"`
	StringValue string  `parquet:"string_value,zstd"`

	// Cell timestamp in Unix milliseconds. Zero marks a cell whose
	// sort key carried no date.
	ValueTS int64 `parquet:"value_ts"`

	// Dataset metadata
	Dataset        string `parquet:"dataset,zstd"`
	DatasetVersion string `parquet:"dataset_version,zstd"`
	RunID          string `parquet:"run_id,zstd"`

	// Ingestion metadata
	IngestedAt time.Time `parquet:"ingested_at,timestamp(millisecond)"`
}

// TableName returns the canonical table name.
func (CellRow) TableName() string {
	return "cells"
}

// ParquetConfig configures parquet output generation.
type ParquetConfig struct {
	Dataset        string
	DatasetVersion string
	RunID          string
	Compression    string // "snappy" | "zstd" | "gzip" | "none"
}

// SchemaVersion is the version of the cells schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"

// ToCellRows flattens sparse rows into long-format parquet rows.
func ToCellRows(rows []Row, cfg ParquetConfig, ingestedAt time.Time) []CellRow {
	out := make([]CellRow, 0, len(rows))
	for _, row := range rows {
		for _, cell := range row.Cells {
			cr := CellRow{
				RowName:        row.Name,
				Column:         cell.Column,
				ValueKind:      int32(cell.Value.Kind),
				Dataset:        cfg.Dataset,
				DatasetVersion: cfg.DatasetVersion,
				RunID:          cfg.RunID,
				IngestedAt:     ingestedAt,
			}
			switch cell.Value.Kind {
			case KindNull:
			case KindBool:
				cr.BoolValue = cell.Value.Bool
			case KindInt:
				cr.IntValue = cell.Value.Int
			case KindFloat:
				cr.DoubleValue = cell.Value.Float
			case KindString:
				cr.StringValue = cell.Value.Str
			}
			if !cell.At.IsZero() {
				cr.ValueTS = cell.At.UnixMilli()
			}
			out = append(out, cr)
		}
	}
	return out
}

// ToParquet encodes cell rows into a parquet file payload.
func ToParquet(rows []CellRow, cfg ParquetConfig) ([]byte, error) {
	var buf bytes.Buffer

	writer := parquet.NewGenericWriter[CellRow](&buf,
		parquet.Compression(compressionCodec(cfg.Compression)),
	)

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("write cell rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}

	return buf.Bytes(), nil
}

// ReadParquet decodes a parquet payload produced by ToParquet.
func ReadParquet(data []byte) ([]CellRow, error) {
	rows, err := parquet.Read[CellRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read cell rows: %w", err)
	}
	return rows, nil
}

// compressionCodec maps a config string to a parquet-go codec.
func compressionCodec(name string) compress.Codec {
	switch name {
	case "zstd":
		return &parquet.Zstd
	case "gzip":
		return &parquet.Gzip
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}
