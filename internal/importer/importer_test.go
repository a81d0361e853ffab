package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/sink"
)

func writeInput(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.ndjson")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	return path
}

func TestImportBasic(t *testing.T) {
	path := writeInput(t, `{"a":1,"b":"x"}
{"a":2}
{"a":3,"nested":{"c":true}}
`)
	out := sink.NewMemorySink()
	result, err := New(Config{Path: path}).Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RowCount != 3 || result.LineErrors != 0 {
		t.Fatalf("result = %+v, want 3 rows, 0 errors", result)
	}

	rows := out.Rows()
	if len(rows) != 3 {
		t.Fatalf("sink has %d rows, want 3", len(rows))
	}
	if rows[0].Name != "row1" || rows[2].Name != "row3" {
		t.Fatalf("row names = %q, %q", rows[0].Name, rows[2].Name)
	}
	if !out.Committed() {
		t.Fatal("sink was not committed")
	}
}

func TestImportOffsetLimitKeepAbsoluteNames(t *testing.T) {
	path := writeInput(t, `{"a":1}
{"a":2}
{"a":3}
{"a":4}
`)
	out := sink.NewMemorySink()
	result, err := New(Config{Path: path, Offset: 1, Limit: 2}).Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", result.RowCount)
	}
	rows := out.Rows()
	if rows[0].Name != "row2" || rows[1].Name != "row3" {
		t.Fatalf("row names = %q, %q, want row2, row3", rows[0].Name, rows[1].Name)
	}
}

func TestImportBadLineFails(t *testing.T) {
	path := writeInput(t, `{"a":1}
not json
`)
	_, err := New(Config{Path: path}).Run(context.Background(), sink.NewMemorySink())
	if err == nil {
		t.Fatal("expected error on bad line")
	}
}

func TestImportIgnoreBadLines(t *testing.T) {
	path := writeInput(t, `{"a":1}
not json
[1,2,3]
{"a":2}
`)
	out := sink.NewMemorySink()
	result, err := New(Config{Path: path, IgnoreBadLines: true}).Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", result.RowCount)
	}
	if result.LineErrors != 2 {
		t.Fatalf("LineErrors = %d, want 2", result.LineErrors)
	}
	rows := out.Rows()
	if rows[1].Name != "row4" {
		t.Fatalf("second row name = %q, want row4", rows[1].Name)
	}
}

func TestImportSkipsBlankLines(t *testing.T) {
	path := writeInput(t, `{"a":1}

{"a":2}
`)
	out := sink.NewMemorySink()
	result, err := New(Config{Path: path}).Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", result.RowCount)
	}
	if rows := out.Rows(); rows[1].Name != "row3" {
		t.Fatalf("second row name = %q, want row3", rows[1].Name)
	}
}

func TestImportGzipInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.ndjson.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating gzip input: %v", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(`{"a":1}` + "\n" + `{"a":2}` + "\n")); err != nil {
		t.Fatalf("writing gzip input: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}

	out := sink.NewMemorySink()
	result, err := New(Config{Path: path}).Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", result.RowCount)
	}
}

func TestImportBatching(t *testing.T) {
	var lines string
	for i := 0; i < 10; i++ {
		lines += `{"a":1}` + "\n"
	}
	path := writeInput(t, lines)

	out := sink.NewMemorySink()
	result, err := New(Config{Path: path, BatchSize: 3}).Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RowCount != 10 {
		t.Fatalf("RowCount = %d, want 10", result.RowCount)
	}
	if len(out.Rows()) != 10 {
		t.Fatalf("sink has %d rows, want 10", len(out.Rows()))
	}
}
