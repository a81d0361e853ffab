package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

// orderedRow is the parquet layout for ordered inputs. Row order in the
// file is the rank order.
type orderedRow struct {
	RowName string `parquet:"row_name"`
	SortTS  *int64 `parquet:"sort_ts,optional"`
}

type parquetSource struct {
	cfg Config
}

func newParquetSource(cfg Config) *parquetSource {
	return &parquetSource{cfg: cfg}
}

func (s *parquetSource) Stream(ctx context.Context) (<-chan Row, <-chan error) {
	rows := make(chan Row, 256)
	errc := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errc)

		records, err := s.readAll(ctx)
		if err != nil {
			errc <- err
			return
		}

		for _, rec := range records {
			if rec.RowName == "" {
				errc <- fmt.Errorf("parquet input %s: empty row_name", s.cfg.Path)
				return
			}
			row := Row{Name: rec.RowName}
			if rec.SortTS != nil {
				row.SortTime = time.UnixMilli(*rec.SortTS).UTC()
			}
			select {
			case rows <- row:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return rows, errc
}

func (s *parquetSource) readAll(ctx context.Context) ([]orderedRow, error) {
	rc, err := Open(ctx, s.cfg.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading parquet input: %w", err)
	}

	records, err := parquet.Read[orderedRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding parquet input: %w", err)
	}
	return records, nil
}

func (s *parquetSource) Close() error { return nil }
