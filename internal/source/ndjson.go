package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const maxLineBytes = 16 * 1024 * 1024

type ndjsonSource struct {
	cfg Config
}

func newNDJSONSource(cfg Config) *ndjsonSource {
	return &ndjsonSource{cfg: cfg}
}

func (s *ndjsonSource) Stream(ctx context.Context) (<-chan Row, <-chan error) {
	rows := make(chan Row, 256)
	errc := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errc)

		rc, err := Open(ctx, s.cfg.Path)
		if err != nil {
			errc <- err
			return
		}
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

		lineNumber := 0
		for scanner.Scan() {
			lineNumber++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var record map[string]any
			if err := json.Unmarshal(line, &record); err != nil {
				errc <- fmt.Errorf("line %d: parsing JSON: %w", lineNumber, err)
				return
			}

			name, ok := record[s.cfg.NameField].(string)
			if !ok || name == "" {
				errc <- fmt.Errorf("line %d: missing %q field", lineNumber, s.cfg.NameField)
				return
			}

			row := Row{Name: name}
			if v, ok := record[s.cfg.TimeField]; ok {
				ts, err := parseTime(v)
				if err != nil {
					errc <- fmt.Errorf("line %d: parsing %q: %w", lineNumber, s.cfg.TimeField, err)
					return
				}
				row.SortTime = ts
			}

			select {
			case rows <- row:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errc <- fmt.Errorf("reading input: %w", err)
		}
	}()

	return rows, errc
}

func (s *ndjsonSource) Close() error { return nil }

// parseTime accepts an RFC3339 string or a unix-epoch number. Numbers
// larger than 1e12 are treated as milliseconds.
func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, err
		}
		return ts, nil
	case float64:
		if t > 1e12 {
			return time.UnixMilli(int64(t)).UTC(), nil
		}
		return time.Unix(int64(t), 0).UTC(), nil
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}
