// Package byos implements the Bring Your Own Storage pack-fetch
// backends (spec.md §3: BYOS URL forms "gs://", "s3://", "az://"),
// each satisfying internal/registry's BYOSFetcher interface.
//
// gs:// is grounded on Mindburn-Labs-helm's
// core/pkg/artifacts/gcs_store.go (cloud.google.com/go/storage,
// bucket/object addressing by a hashed key) and s3:// on that same
// package's s3_store.go (aws-sdk-go-v2/service/s3), both retargeted
// from content-addressed artifact storage to fetching one named pack
// object. az:// has no SDK anywhere in the retrieval pack, so it is a
// typed stub rather than a fabricated dependency (see Unsupported).
package byos

import (
	"context"
	"fmt"
	"strings"
)

// parseURL splits a "<scheme>://<bucket>/<key...>" BYOS reference into
// its bucket and key, the addressing scheme every backend here shares.
func parseURL(url, scheme string) (bucket, key string, err error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(url, prefix) {
		return "", "", fmt.Errorf("byos: %q is not a %s reference", url, scheme)
	}
	rest := strings.TrimPrefix(url, prefix)
	slash := strings.IndexByte(rest, '/')
	if slash < 0 || slash == 0 || slash == len(rest)-1 {
		return "", "", fmt.Errorf("byos: %q must be %s://<bucket>/<key>", url, scheme)
	}
	return rest[:slash], rest[slash+1:], nil
}

// Fetcher is the per-scheme interface every backend in this package
// implements; it matches internal/registry's BYOSFetcher exactly so a
// MultiFetcher can also be used wherever a single BYOSFetcher is
// expected.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// MultiFetcher dispatches a BYOS reference to the backend registered for
// its scheme, so a Resolver can be configured with one BYOSFetcher that
// transparently covers gs://, s3://, and (stubbed) az://.
type MultiFetcher struct {
	bySchemeFetcher map[string]Fetcher
}

// NewMultiFetcher builds a dispatcher. A nil entry for a scheme is
// treated the same as a missing one.
func NewMultiFetcher(gcs, s3 Fetcher) *MultiFetcher {
	m := &MultiFetcher{bySchemeFetcher: map[string]Fetcher{}}
	if gcs != nil {
		m.bySchemeFetcher["gs"] = gcs
	}
	if s3 != nil {
		m.bySchemeFetcher["s3"] = s3
	}
	m.bySchemeFetcher["az"] = UnsupportedFetcher{Scheme: "az"}
	return m
}

func (m *MultiFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	scheme, ok := schemeOf(url)
	if !ok {
		return nil, fmt.Errorf("byos: %q is not a recognized BYOS reference", url)
	}
	f, ok := m.bySchemeFetcher[scheme]
	if !ok {
		return nil, fmt.Errorf("byos: no fetcher registered for scheme %q", scheme)
	}
	return f.Fetch(ctx, url)
}

func schemeOf(url string) (string, bool) {
	idx := strings.Index(url, "://")
	if idx <= 0 {
		return "", false
	}
	return url[:idx], true
}
