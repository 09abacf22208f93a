package netutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

// FetchResult is the outcome of a size-bounded body fetch.
type FetchResult struct {
	Body   []byte
	SHA256 string
	Size   int64
}

// FetchBody performs an HTTPS GET against url using client (normally one
// built by NewSecureClient) and reads the response body into memory,
// capped at maxSize bytes, computing its SHA-256 as it streams.
//
// This is the size-bounded streaming-hash pattern from mcptrust's
// downloadWithSHA256 (internal/netutil/tarball.go), generalized from
// "download a tarball to a temp file" to "fetch any bounded response
// body in memory" for the registry client's pack/signature/keys-manifest
// GETs — pack bodies are small YAML documents, not archives, so there is
// no need for a temp-file intermediate here.
func FetchBody(ctx context.Context, client *http.Client, url string, maxSize int64) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("netutil: building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netutil: request failed: %w", err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if maxSize > 0 {
		body = io.LimitReader(resp.Body, maxSize+1)
	}
	h := sha256.New()
	tee := io.TeeReader(body, h)

	buf, err := io.ReadAll(tee)
	if err != nil {
		return nil, fmt.Errorf("netutil: reading response body: %w", err)
	}
	if maxSize > 0 && int64(len(buf)) > maxSize {
		return nil, fmt.Errorf("netutil: response body exceeds maximum size of %d bytes", maxSize)
	}

	return &FetchResult{
		Body:   buf,
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   int64(len(buf)),
	}, nil
}

// StatusError carries an HTTP response's status code and body snippet
// for callers that branch on it (401/410/429/5xx handling in the
// registry client).
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("netutil: unexpected status %s", e.Status)
}
