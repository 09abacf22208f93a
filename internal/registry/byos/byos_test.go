package byos

import (
	"context"
	"testing"
)

type fakeFetcher struct {
	lastURL string
	body    []byte
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.lastURL = url
	return f.body, f.err
}

func TestParseURLSplitsBucketAndKey(t *testing.T) {
	bucket, key, err := parseURL("gs://my-bucket/packs/safety.yaml", "gs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "my-bucket" || key != "packs/safety.yaml" {
		t.Fatalf("expected bucket=my-bucket key=packs/safety.yaml, got bucket=%s key=%s", bucket, key)
	}
}

func TestParseURLRejectsWrongScheme(t *testing.T) {
	if _, _, err := parseURL("s3://bucket/key", "gs"); err == nil {
		t.Fatalf("expected an error for a mismatched scheme")
	}
}

func TestParseURLRejectsMissingKey(t *testing.T) {
	if _, _, err := parseURL("gs://bucket-only", "gs"); err == nil {
		t.Fatalf("expected an error for a reference with no key")
	}
}

func TestMultiFetcherDispatchesByScheme(t *testing.T) {
	gcs := &fakeFetcher{body: []byte("gcs-pack")}
	s3 := &fakeFetcher{body: []byte("s3-pack")}
	m := NewMultiFetcher(gcs, s3)

	body, err := m.Fetch(context.Background(), "gs://bucket/pack.yaml")
	if err != nil || string(body) != "gcs-pack" {
		t.Fatalf("expected gcs fetcher to serve gs:// reference, got %q, err=%v", body, err)
	}
	if gcs.lastURL != "gs://bucket/pack.yaml" {
		t.Fatalf("expected gcs fetcher to see the original url, got %q", gcs.lastURL)
	}

	body, err = m.Fetch(context.Background(), "s3://bucket/pack.yaml")
	if err != nil || string(body) != "s3-pack" {
		t.Fatalf("expected s3 fetcher to serve s3:// reference, got %q, err=%v", body, err)
	}
}

func TestMultiFetcherRejectsAzureAsUnsupported(t *testing.T) {
	m := NewMultiFetcher(&fakeFetcher{}, &fakeFetcher{})
	if _, err := m.Fetch(context.Background(), "az://container/pack.yaml"); err == nil {
		t.Fatalf("expected az:// references to be rejected")
	}
}

func TestMultiFetcherRejectsUnrecognizedScheme(t *testing.T) {
	m := NewMultiFetcher(&fakeFetcher{}, &fakeFetcher{})
	if _, err := m.Fetch(context.Background(), "not-a-url"); err == nil {
		t.Fatalf("expected an error for an unrecognized reference")
	}
}
