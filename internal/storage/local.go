package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore writes dataset files to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	return &LocalStore{
		baseDir: baseDir,
		prefix:  prefix,
	}, nil
}

// writeFileAtomic writes data to path using a temp file + rename.
func (s *LocalStore) writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}

	return nil
}

// WriteParquet writes parquet bytes to the local filesystem.
func (s *LocalStore) WriteParquet(ctx context.Context, ref DatasetRef, data []byte) error {
	return s.writeFileAtomic(filepath.Join(s.baseDir, ref.Path(s.prefix)), data)
}

// WriteManifest writes a manifest file to the local filesystem.
func (s *LocalStore) WriteManifest(ctx context.Context, ref DatasetRef, manifest *Manifest) error {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.writeFileAtomic(filepath.Join(s.baseDir, ref.ManifestPath(s.prefix)), data)
}

// Exists checks if a dataset run already exists.
func (s *LocalStore) Exists(ctx context.Context, ref DatasetRef) (bool, error) {
	path := filepath.Join(s.baseDir, ref.Path(s.prefix))
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath := filepath.Join(s.baseDir, key)
	return "file://" + absPath
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}

// --- AtomicStore implementation ---

// writeTemp writes data to a uniquely named temp key next to finalKey.
func (s *LocalStore) writeTemp(finalKey string, data []byte) (string, error) {
	tempKey := finalKey + ".tmp." + uuid.New().String()
	path := filepath.Join(s.baseDir, tempKey)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write temp file %s: %w", path, err)
	}

	return tempKey, nil
}

// WriteParquetTemp writes parquet bytes to a temporary location.
func (s *LocalStore) WriteParquetTemp(ctx context.Context, ref DatasetRef, data []byte) (string, error) {
	return s.writeTemp(ref.Path(s.prefix), data)
}

// WriteManifestTemp writes a manifest to a temporary location.
func (s *LocalStore) WriteManifestTemp(ctx context.Context, ref DatasetRef, manifest *Manifest) (string, error) {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return s.writeTemp(ref.ManifestPath(s.prefix), data)
}

// Finalize atomically renames temp files to their canonical locations.
func (s *LocalStore) Finalize(ctx context.Context, ref DatasetRef, tempKeys []string) error {
	finalKeys := []string{
		ref.Path(s.prefix),
		ref.ManifestPath(s.prefix),
	}

	if len(tempKeys) != len(finalKeys) {
		return fmt.Errorf("expected %d temp keys, got %d", len(finalKeys), len(tempKeys))
	}

	for i, tempKey := range tempKeys {
		src := filepath.Join(s.baseDir, tempKey)
		dst := filepath.Join(s.baseDir, finalKeys[i])

		if err := os.Rename(src, dst); err != nil {
			// Rollback already-renamed files and clean up remaining temps
			for j := 0; j < i; j++ {
				os.Remove(filepath.Join(s.baseDir, finalKeys[j]))
			}
			s.Abort(ctx, tempKeys[i:])
			return fmt.Errorf("finalize %s -> %s: %w", tempKey, finalKeys[i], err)
		}
	}

	return nil
}

// Abort removes temporary files without publishing.
func (s *LocalStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, key := range tempKeys {
		if err := os.Remove(filepath.Join(s.baseDir, key)); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}

// Verify LocalStore implements AtomicStore.
var _ AtomicStore = (*LocalStore)(nil)
