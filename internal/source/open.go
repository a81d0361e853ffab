package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// Open opens the input payload for reading. Local paths are opened
// directly; gs:// and s3:// URLs are opened through their blob drivers.
// Payloads ending in .gz or .zst are decompressed transparently.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := openRaw(ctx, path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return &layeredReadCloser{Reader: gz, closers: []io.Closer{gz, rc}}, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return &layeredReadCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), rc}}, nil
	default:
		return rc, nil
	}
}

func openRaw(ctx context.Context, path string) (io.ReadCloser, error) {
	if !strings.HasPrefix(path, "gs://") && !strings.HasPrefix(path, "s3://") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input file: %w", err)
		}
		return f, nil
	}

	u, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parsing input URL: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("input URL %q missing bucket or key", path)
	}

	bucket, err := blob.OpenBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", u.Host, err)
	}

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("opening object %s: %w", key, err)
	}
	return &layeredReadCloser{Reader: r, closers: []io.Closer{r, bucket}}, nil
}

type layeredReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (l *layeredReadCloser) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
