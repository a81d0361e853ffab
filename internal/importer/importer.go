// Package importer loads line-delimited JSON into a sparse cell
// dataset. Each input line becomes one row; object fields flatten into
// dotted column paths.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/logging"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/metrics"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/sink"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/source"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/tables"
)

const maxLineBytes = 16 * 1024 * 1024

// Config configures a JSON import run.
type Config struct {
	// Path is the line-delimited JSON input. Local paths and gs:// or
	// s3:// URLs are supported; .gz and .zst payloads are decompressed.
	Path string `yaml:"path"`

	// Offset skips the first N lines.
	Offset int64 `yaml:"offset"`

	// Limit caps the number of imported lines. -1 means no limit.
	Limit int64 `yaml:"limit"`

	// IgnoreBadLines skips unparseable lines instead of failing.
	IgnoreBadLines bool `yaml:"ignore_bad_lines"`

	// BatchSize is the number of rows per RecordRows call.
	BatchSize int `yaml:"batch_size"`

	// Labels tags metric samples for this run.
	Labels metrics.Labels `yaml:"-"`
}

// Result summarizes an import run.
type Result struct {
	RowCount   int64
	LineErrors int64
	Status     *sink.Status
}

// Importer runs JSON imports.
type Importer struct {
	cfg Config
	log *slog.Logger
	met *metrics.Metrics
}

func New(cfg Config) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1024
	}
	if cfg.Limit == 0 {
		cfg.Limit = -1
	}
	return &Importer{
		cfg: cfg,
		log: logging.Component("importer"),
		met: metrics.Get(),
	}
}

// Run streams the input, records flattened rows to the sink in batches
// and commits. Row names carry the absolute input line number, so
// offset and limit do not change a line's row name.
func (im *Importer) Run(ctx context.Context, out sink.Sink) (*Result, error) {
	lv := im.cfg.Labels.Values()

	rc, err := source.Open(ctx, im.cfg.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	runTime := time.Now().UTC()
	batch := make([]tables.Row, 0, im.cfg.BatchSize)
	result := &Result{}

	var lineIndex int64 = -1
	for scanner.Scan() {
		lineIndex++
		if lineIndex < im.cfg.Offset {
			continue
		}
		if im.cfg.Limit >= 0 && result.RowCount+result.LineErrors >= im.cfg.Limit {
			break
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		cells, err := parseLine(line, runTime)
		if err != nil {
			if !im.cfg.IgnoreBadLines {
				return nil, fmt.Errorf("line %d: %w", lineIndex+1, err)
			}
			result.LineErrors++
			im.met.LineErrors.WithLabelValues(lv...).Inc()
			im.log.Warn("skipping bad line", "line", lineIndex+1, "error", err)
			continue
		}

		batch = append(batch, tables.Row{
			Name:  fmt.Sprintf("row%d", lineIndex+1),
			Cells: cells,
		})
		result.RowCount++

		if len(batch) >= im.cfg.BatchSize {
			if err := out.RecordRows(ctx, batch); err != nil {
				im.met.SinkErrors.WithLabelValues(lv...).Inc()
				return nil, fmt.Errorf("recording batch: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	if len(batch) > 0 {
		if err := out.RecordRows(ctx, batch); err != nil {
			im.met.SinkErrors.WithLabelValues(lv...).Inc()
			return nil, fmt.Errorf("recording batch: %w", err)
		}
	}

	status, err := out.Commit(ctx)
	if err != nil {
		im.met.SinkErrors.WithLabelValues(lv...).Inc()
		return nil, fmt.Errorf("committing sink: %w", err)
	}
	result.Status = status

	im.met.ImportedLines.WithLabelValues(lv...).Add(float64(result.RowCount))
	im.log.Info("import complete",
		"rows", result.RowCount,
		"line_errors", result.LineErrors)
	return result, nil
}

func parseLine(line []byte, at time.Time) ([]tables.Cell, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return flatten(obj, at)
}
