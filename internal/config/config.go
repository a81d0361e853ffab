// Package config loads bucketizer configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/buckets"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/importer"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/sink"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/source"
	"github.com/withObsrvr/obsrvr-bucketizer/internal/storage"
)

// Config is the full bucketizer configuration.
type Config struct {
	// Procedure selects the run mode: "bucketize" or "import_json".
	Procedure string `yaml:"procedure"`

	// Buckets maps bucket labels to [start, end) percentile ranges.
	Buckets map[string][2]float64 `yaml:"percentile_buckets"`

	Input  source.Config   `yaml:"input"`
	Import importer.Config `yaml:"import"`
	Output OutputConfig    `yaml:"output"`

	Catalog CatalogConfig `yaml:"catalog"`
	Notify  NotifyConfig  `yaml:"notify"`
	Report  ReportConfig  `yaml:"report"`

	Perf    PerfConfig    `yaml:"performance"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// OutputConfig describes the dataset being produced and where it lands.
type OutputConfig struct {
	Namespace      string         `yaml:"namespace"`
	Dataset        string         `yaml:"dataset"`
	DatasetVersion string         `yaml:"dataset_version"`
	Table          string         `yaml:"table"`
	Compression    string         `yaml:"compression"`
	Storage        storage.Config `yaml:"storage"`
}

// CatalogConfig configures the optional Postgres run catalog. An empty
// DSN disables the catalog.
type CatalogConfig struct {
	DatabaseDSN    string        `yaml:"database_dsn"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// NotifyConfig configures run event emission.
type NotifyConfig struct {
	Enabled       bool   `yaml:"enabled"`
	EndpointURL   string `yaml:"endpoint_url"`
	FilePath      string `yaml:"file_path"`
	ChainHeadPath string `yaml:"chain_head_path"`
}

// ReportConfig configures the run report written after each run.
type ReportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PerfConfig tunes the parallel fan-out.
type PerfConfig struct {
	// Workers is the fan-out width. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// FlushThreshold is the per-worker buffer size that triggers a
	// flush to the sink. Zero means the default of 1024.
	FlushThreshold int `yaml:"flush_threshold"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Load reads the YAML config at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("BUCKETIZER_PROCEDURE", &c.Procedure)
	setString("BUCKETIZER_INPUT_PATH", &c.Input.Path)
	setString("BUCKETIZER_INPUT_FORMAT", &c.Input.Format)
	setString("BUCKETIZER_IMPORT_PATH", &c.Import.Path)
	setString("BUCKETIZER_NAMESPACE", &c.Output.Namespace)
	setString("BUCKETIZER_DATASET", &c.Output.Dataset)
	setString("BUCKETIZER_DATASET_VERSION", &c.Output.DatasetVersion)
	setString("BUCKETIZER_TABLE", &c.Output.Table)
	setString("BUCKETIZER_COMPRESSION", &c.Output.Compression)
	setString("BUCKETIZER_STORAGE_BACKEND", &c.Output.Storage.Backend)
	setString("BUCKETIZER_STORAGE_LOCAL_DIR", &c.Output.Storage.LocalDir)
	setString("BUCKETIZER_STORAGE_GCS_BUCKET", &c.Output.Storage.GCSBucket)
	setString("BUCKETIZER_STORAGE_S3_BUCKET", &c.Output.Storage.S3Bucket)
	setString("BUCKETIZER_STORAGE_S3_ENDPOINT", &c.Output.Storage.S3Endpoint)
	setString("BUCKETIZER_STORAGE_S3_REGION", &c.Output.Storage.S3Region)
	setString("BUCKETIZER_STORAGE_PREFIX", &c.Output.Storage.Prefix)
	setString("BUCKETIZER_DATABASE_DSN", &c.Catalog.DatabaseDSN)
	setString("BUCKETIZER_NOTIFY_ENDPOINT", &c.Notify.EndpointURL)
	setString("BUCKETIZER_NOTIFY_FILE", &c.Notify.FilePath)
	setString("BUCKETIZER_REPORT_PATH", &c.Report.Path)
	setString("BUCKETIZER_LOG_FORMAT", &c.Logging.Format)
	setString("BUCKETIZER_LOG_LEVEL", &c.Logging.Level)
	setInt("BUCKETIZER_WORKERS", &c.Perf.Workers)
	setInt("BUCKETIZER_FLUSH_THRESHOLD", &c.Perf.FlushThreshold)
	setInt("BUCKETIZER_METRICS_PORT", &c.Metrics.Port)
	setBool("BUCKETIZER_METRICS_ENABLED", &c.Metrics.Enabled)
	setBool("BUCKETIZER_NOTIFY_ENABLED", &c.Notify.Enabled)
	setBool("BUCKETIZER_REPORT_ENABLED", &c.Report.Enabled)
}

func (c *Config) applyDefaults() {
	if c.Procedure == "" {
		c.Procedure = "bucketize"
	}
	if c.Input.Format == "" {
		c.Input.Format = "ndjson"
	}
	if c.Output.Namespace == "" {
		c.Output.Namespace = "default"
	}
	if c.Output.DatasetVersion == "" {
		c.Output.DatasetVersion = "v1"
	}
	if c.Output.Table == "" {
		c.Output.Table = "cells"
	}
	if c.Output.Compression == "" {
		c.Output.Compression = "zstd"
	}
	if c.Output.Storage.Backend == "" {
		c.Output.Storage.Backend = "local"
	}
	if c.Output.Storage.LocalDir == "" {
		c.Output.Storage.LocalDir = "./data"
	}
	if c.Perf.FlushThreshold == 0 {
		c.Perf.FlushThreshold = 1024
	}
	if c.Import.BatchSize == 0 {
		c.Import.BatchSize = 1024
	}
	if c.Import.Limit == 0 {
		c.Import.Limit = -1
	}
	if c.Catalog.ConnectTimeout == 0 {
		c.Catalog.ConnectTimeout = 5 * time.Second
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Report.Path == "" {
		c.Report.Path = "./bucketizer-report.json"
	}
}

// Validate checks structural requirements. Percentile range semantics
// are delegated to the buckets package.
func (c *Config) Validate() error {
	switch c.Procedure {
	case "bucketize":
		if len(c.Buckets) == 0 {
			return fmt.Errorf("percentile_buckets must not be empty")
		}
		if err := buckets.Validate(buckets.FromConfig(c.Buckets)); err != nil {
			return err
		}
		if c.Input.Path == "" {
			return fmt.Errorf("input.path is required")
		}
		switch c.Input.Format {
		case "ndjson", "parquet":
		default:
			return fmt.Errorf("input.format must be ndjson or parquet, got %q", c.Input.Format)
		}
	case "import_json":
		if c.Import.Path == "" {
			return fmt.Errorf("import.path is required")
		}
		if c.Import.Offset < 0 {
			return fmt.Errorf("import.offset must not be negative")
		}
		if c.Import.Limit < -1 {
			return fmt.Errorf("import.limit must be -1 or non-negative")
		}
	default:
		return fmt.Errorf("procedure must be bucketize or import_json, got %q", c.Procedure)
	}

	if c.Output.Dataset == "" {
		return fmt.Errorf("output.dataset is required")
	}
	switch c.Output.Compression {
	case "snappy", "zstd", "gzip", "none":
	default:
		return fmt.Errorf("output.compression must be snappy, zstd, gzip or none, got %q", c.Output.Compression)
	}
	switch c.Output.Storage.Backend {
	case "local":
	case "gcs":
		if c.Output.Storage.GCSBucket == "" {
			return fmt.Errorf("output.storage.gcs_bucket is required for the gcs backend")
		}
	case "s3":
		if c.Output.Storage.S3Bucket == "" {
			return fmt.Errorf("output.storage.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("output.storage.backend must be local, gcs or s3, got %q", c.Output.Storage.Backend)
	}
	if c.Perf.Workers < 0 {
		return fmt.Errorf("performance.workers must not be negative")
	}
	if c.Perf.FlushThreshold < 1 {
		return fmt.Errorf("performance.flush_threshold must be positive")
	}
	return nil
}

// SinkConfig derives the sink configuration for a run.
func (c *Config) SinkConfig(runID string) sink.Config {
	return sink.Config{
		Namespace:      c.Output.Namespace,
		Dataset:        c.Output.Dataset,
		DatasetVersion: c.Output.DatasetVersion,
		Table:          c.Output.Table,
		RunID:          runID,
		Compression:    c.Output.Compression,
		Procedure:      c.Procedure,
	}
}
