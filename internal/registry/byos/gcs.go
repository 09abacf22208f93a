package byos

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSFetcher fetches a pack object from Google Cloud Storage, addressed
// by a "gs://<bucket>/<key>" reference (spec.md §3).
type GCSFetcher struct {
	client *storage.Client
}

// NewGCSFetcher opens a GCS client using application default credentials,
// mirroring Mindburn-Labs-helm's NewGCSStore.
func NewGCSFetcher(ctx context.Context) (*GCSFetcher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("byos: creating GCS client: %w", err)
	}
	return &GCSFetcher{client: client}, nil
}

// Fetch downloads the object named by a gs:// URL.
func (f *GCSFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	bucket, key, err := parseURL(url, "gs")
	if err != nil {
		return nil, err
	}
	obj := f.client.Bucket(bucket).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("byos: %s not found: %w", url, err)
		}
		return nil, fmt.Errorf("byos: fetching %s: %w", url, err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

// Close releases the underlying GCS client's resources.
func (f *GCSFetcher) Close() error {
	return f.client.Close()
}
