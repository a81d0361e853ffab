package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
)

// S3Store writes dataset files to S3-compatible storage.
type S3Store struct {
	bucket     *blob.Bucket
	bucketName string
	prefix     string
}

// NewS3Store creates a new S3-compatible store.
// Works with AWS S3, Backblaze B2, Cloudflare R2, and MinIO.
func NewS3Store(bucketName, prefix, endpoint, region string) (*S3Store, error) {
	ctx := context.Background()

	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return &S3Store{
		bucket:     bucket,
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// writeObject writes data to the given key.
func (s *S3Store) writeObject(ctx context.Context, key string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}

	return nil
}

// WriteParquet writes parquet bytes to S3.
func (s *S3Store) WriteParquet(ctx context.Context, ref DatasetRef, data []byte) error {
	return s.writeObject(ctx, ref.Path(s.prefix), data)
}

// WriteManifest writes a manifest file to S3.
func (s *S3Store) WriteManifest(ctx context.Context, ref DatasetRef, manifest *Manifest) error {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.writeObject(ctx, ref.ManifestPath(s.prefix), data)
}

// Exists checks if a dataset run already exists in S3.
func (s *S3Store) Exists(ctx context.Context, ref DatasetRef) (bool, error) {
	return s.bucket.Exists(ctx, ref.Path(s.prefix))
}

// URI returns the canonical URI for the given key.
func (s *S3Store) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucketName, key)
}

// Close releases the bucket connection.
func (s *S3Store) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

// --- AtomicStore implementation ---

// WriteParquetTemp writes parquet bytes to a temporary location.
func (s *S3Store) WriteParquetTemp(ctx context.Context, ref DatasetRef, data []byte) (string, error) {
	tempKey := ref.Path(s.prefix) + ".tmp." + uuid.New().String()
	if err := s.writeObject(ctx, tempKey, data); err != nil {
		return "", err
	}
	return tempKey, nil
}

// WriteManifestTemp writes a manifest to a temporary location.
func (s *S3Store) WriteManifestTemp(ctx context.Context, ref DatasetRef, manifest *Manifest) (string, error) {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	tempKey := ref.ManifestPath(s.prefix) + ".tmp." + uuid.New().String()
	if err := s.writeObject(ctx, tempKey, data); err != nil {
		return "", err
	}
	return tempKey, nil
}

// Finalize atomically moves temp files to their canonical location.
// Uses copy + delete pattern.
func (s *S3Store) Finalize(ctx context.Context, ref DatasetRef, tempKeys []string) error {
	finalKeys := []string{
		ref.Path(s.prefix),
		ref.ManifestPath(s.prefix),
	}

	if len(tempKeys) != len(finalKeys) {
		return fmt.Errorf("expected %d temp keys, got %d", len(finalKeys), len(tempKeys))
	}

	for i, tempKey := range tempKeys {
		finalKey := finalKeys[i]

		if err := s.copyObject(ctx, tempKey, finalKey); err != nil {
			for j := 0; j < i; j++ {
				s.bucket.Delete(ctx, finalKeys[j])
			}
			s.Abort(ctx, tempKeys)
			return fmt.Errorf("finalize %s -> %s: %w", tempKey, finalKey, err)
		}
	}

	for _, tempKey := range tempKeys {
		s.bucket.Delete(ctx, tempKey) // ignore errors
	}

	return nil
}

// copyObject copies an object within the bucket.
func (s *S3Store) copyObject(ctx context.Context, srcKey, dstKey string) error {
	r, err := s.bucket.NewReader(ctx, srcKey, nil)
	if err != nil {
		return fmt.Errorf("open source %s: %w", srcKey, err)
	}
	defer r.Close()

	w, err := s.bucket.NewWriter(ctx, dstKey, nil)
	if err != nil {
		return fmt.Errorf("create destination %s: %w", dstKey, err)
	}

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copy to %s: %w", dstKey, err)
	}

	return w.Close()
}

// Abort removes temporary files without publishing.
func (s *S3Store) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, key := range tempKeys {
		if err := s.bucket.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Verify S3Store implements AtomicStore.
var _ AtomicStore = (*S3Store)(nil)
