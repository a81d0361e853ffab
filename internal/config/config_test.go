package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/buckets"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validYAML = `
procedure: bucketize
percentile_buckets:
  low: [0, 25]
  mid: [25, 75]
  high: [75, 100]
input:
  format: ndjson
  path: /data/in.ndjson
output:
  dataset: events
  storage:
    backend: local
    local_dir: /data/out
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Procedure != "bucketize" {
		t.Fatalf("Procedure = %q", cfg.Procedure)
	}
	if len(cfg.Buckets) != 3 {
		t.Fatalf("Buckets = %v", cfg.Buckets)
	}
	if cfg.Buckets["mid"] != [2]float64{25, 75} {
		t.Fatalf("mid = %v", cfg.Buckets["mid"])
	}

	// Defaults
	if cfg.Perf.FlushThreshold != 1024 {
		t.Fatalf("FlushThreshold = %d, want 1024", cfg.Perf.FlushThreshold)
	}
	if cfg.Output.Compression != "zstd" {
		t.Fatalf("Compression = %q, want zstd", cfg.Output.Compression)
	}
	if cfg.Output.Namespace != "default" {
		t.Fatalf("Namespace = %q, want default", cfg.Output.Namespace)
	}
	if cfg.Import.Limit != -1 {
		t.Fatalf("Import.Limit = %d, want -1", cfg.Import.Limit)
	}
}

func TestLoadRejectsOverlappingBuckets(t *testing.T) {
	yaml := `
procedure: bucketize
percentile_buckets:
  a: [0, 60]
  b: [40, 100]
input:
  path: /data/in.ndjson
output:
  dataset: events
`
	_, err := Load(writeConfig(t, yaml))
	if !errors.Is(err, buckets.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestLoadRejectsMissingDataset(t *testing.T) {
	yaml := `
procedure: bucketize
percentile_buckets:
  all: [0, 100]
input:
  path: /data/in.ndjson
`
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Fatal("expected error for missing dataset")
	}
}

func TestLoadRejectsUnknownProcedure(t *testing.T) {
	yaml := `
procedure: shuffle
output:
  dataset: events
`
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Fatal("expected error for unknown procedure")
	}
}

func TestLoadImportProcedure(t *testing.T) {
	yaml := `
procedure: import_json
import:
  path: /data/in.jsonl
  ignore_bad_lines: true
output:
  dataset: imported
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Import.IgnoreBadLines {
		t.Fatal("IgnoreBadLines not parsed")
	}
	if cfg.Import.BatchSize != 1024 {
		t.Fatalf("BatchSize = %d, want 1024", cfg.Import.BatchSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BUCKETIZER_DATASET", "overridden")
	t.Setenv("BUCKETIZER_WORKERS", "8")
	t.Setenv("BUCKETIZER_FLUSH_THRESHOLD", "256")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output.Dataset != "overridden" {
		t.Fatalf("Dataset = %q, want overridden", cfg.Output.Dataset)
	}
	if cfg.Perf.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", cfg.Perf.Workers)
	}
	if cfg.Perf.FlushThreshold != 256 {
		t.Fatalf("FlushThreshold = %d, want 256", cfg.Perf.FlushThreshold)
	}
}

func TestSinkConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sc := cfg.SinkConfig("run-42")
	if sc.RunID != "run-42" || sc.Dataset != "events" || sc.Procedure != "bucketize" {
		t.Fatalf("SinkConfig = %+v", sc)
	}
}
