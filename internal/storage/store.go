package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DatasetRef describes a versioned output dataset location.
type DatasetRef struct {
	Namespace string // logical grouping, e.g. "analytics"
	Dataset   string // output dataset name
	Version   string // "v1" | "v2"
	Table     string // "cells"
	RunID     string // unique per run
}

// Path returns the storage path for this dataset's parquet file.
func (r DatasetRef) Path(prefix string) string {
	return fmt.Sprintf("%s%s/%s/%s/%s/run=%s/part-0.parquet",
		prefix, r.Namespace, r.Dataset, r.Version, r.Table, r.RunID)
}

// ManifestPath returns the storage path for this dataset's manifest.
func (r DatasetRef) ManifestPath(prefix string) string {
	return fmt.Sprintf("%s%s/%s/%s/%s/run=%s/_manifest.json",
		prefix, r.Namespace, r.Dataset, r.Version, r.Table, r.RunID)
}

// DirPath returns the directory path for this dataset run.
func (r DatasetRef) DirPath(prefix string) string {
	return fmt.Sprintf("%s%s/%s/%s/%s/run=%s",
		prefix, r.Namespace, r.Dataset, r.Version, r.Table, r.RunID)
}

// Manifest describes the contents of a committed dataset run.
type Manifest struct {
	Dataset   DatasetInfo          `json:"dataset"`
	Tables    map[string]TableInfo `json:"tables"`
	Producer  ProducerInfo         `json:"producer"`
	CreatedAt time.Time            `json:"created_at"`
}

// DatasetInfo identifies the dataset run.
type DatasetInfo struct {
	Namespace string `json:"namespace"`
	Dataset   string `json:"dataset"`
	Version   string `json:"version"`
	RunID     string `json:"run_id"`
	Procedure string `json:"procedure"`
}

// TableInfo describes a single table in the dataset.
type TableInfo struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the dataset.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// Store abstracts writing dataset payloads to storage.
type Store interface {
	// WriteParquet writes parquet bytes to storage.
	WriteParquet(ctx context.Context, ref DatasetRef, parquetBytes []byte) error

	// WriteManifest writes a manifest file to storage.
	WriteManifest(ctx context.Context, ref DatasetRef, manifest *Manifest) error

	// Exists checks if a dataset run already exists.
	Exists(ctx context.Context, ref DatasetRef) (bool, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// AtomicStore extends Store with atomic publish capabilities.
// This is the preferred interface for production use.
type AtomicStore interface {
	Store

	// WriteParquetTemp writes parquet bytes to a temporary location.
	// Returns the temp key that can be passed to Finalize.
	WriteParquetTemp(ctx context.Context, ref DatasetRef, parquetBytes []byte) (tempKey string, err error)

	// WriteManifestTemp writes a manifest to a temporary location.
	WriteManifestTemp(ctx context.Context, ref DatasetRef, manifest *Manifest) (tempKey string, err error)

	// Finalize atomically moves temp files to their canonical location.
	// For object stores this is copy+delete; for local filesystem it's rename.
	// If any file fails to finalize, all should be rolled back.
	Finalize(ctx context.Context, ref DatasetRef, tempKeys []string) error

	// Abort removes temporary files without publishing.
	Abort(ctx context.Context, tempKeys []string) error
}

// Config configures the storage backend.
type Config struct {
	Backend string `yaml:"backend"` // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string `yaml:"local_dir"`

	// GCS
	GCSBucket string `yaml:"gcs_bucket"`

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"` // custom endpoint for B2/MinIO/R2
	S3Region   string `yaml:"s3_region"`

	// Common
	Prefix string `yaml:"prefix"` // path prefix within bucket or local dir
}

// NewStore creates a storage backend based on configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewGCSStore(cfg.GCSBucket, cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewS3Store(cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// AsAtomic attempts to cast a Store to AtomicStore.
// Returns nil if the store doesn't support atomic operations.
func AsAtomic(store Store) AtomicStore {
	if atomic, ok := store.(AtomicStore); ok {
		return atomic
	}
	return nil
}
