// Package registry implements the pack registry client (spec.md §4.7):
// conditional HTTP fetch of signed compliance packs, OIDC bearer auth,
// and the fixed pack-reference resolution order.
//
// Grounded on mcptrust's internal/netutil (SSRF-hardened client, reused
// via internal/netutil here) and internal/sigstore (the closest teacher
// analogue for "fetch something over HTTP, then verify it against a
// trust root before accepting it").
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/assayhq/assay/internal/cache"
	"github.com/assayhq/assay/internal/canon"
	"github.com/assayhq/assay/internal/netutil"
	"github.com/assayhq/assay/internal/reason"
	"github.com/assayhq/assay/internal/trust"
)

const maxRetries = 3

// Client talks to one pack registry origin.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Trust   *trust.Store
	Store   *cache.Cache
	Fetcher *cache.Fetcher
	OIDC    *OIDCExchanger // nil if this registry requires no auth

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewClient builds a Client over an SSRF-hardened transport.
func NewClient(baseURL string, trustStore *trust.Store, store *cache.Cache, oidc *OIDCExchanger) *Client {
	return &Client{
		HTTP:    netutil.NewSecureClient(netutil.DefaultClientConfig()),
		BaseURL: strings.TrimRight(baseURL, "/"),
		Trust:   trustStore,
		Store:   store,
		Fetcher: cache.NewFetcher(store),
		OIDC:    oidc,
		Now:     time.Now,
	}
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// FetchPack resolves name@version, consulting the cache first and only
// going to the network when the cached entry is absent or stale.
func (c *Client) FetchPack(ctx context.Context, name, version string) (*cache.Entry, error) {
	now := c.now()

	entry, ok, err := c.Store.Get(name, version)
	if err != nil {
		return nil, err
	}
	if ok && !entry.Stale(now) {
		return entry, nil
	}

	return c.Fetcher.GetOrFetch(name, version, func() ([]byte, []byte, cache.Metadata, error) {
		return c.fetchFromOrigin(ctx, name, version, entry)
	})
}

func (c *Client) fetchFromOrigin(ctx context.Context, name, version string, stale *cache.Entry) ([]byte, []byte, cache.Metadata, error) {
	etag := ""
	// A prior stale-but-present entry's ETag drives the conditional GET.
	if stale != nil {
		etag = stale.Metadata.ETag
	}

	path := fmt.Sprintf("/packs/%s/%s", name, version)
	resp, err := c.doWithRetry(ctx, http.MethodGet, path, etag)
	if err != nil {
		return nil, nil, cache.Metadata{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if stale != nil {
			meta := stale.Metadata
			meta.FetchedAt = c.now()
			meta.ExpiresAt = cache.ExpiresAt(meta.FetchedAt, parseMaxAge(resp.Header.Get("Cache-Control")))
			return stale.Pack, stale.Signature, meta, nil
		}
		return nil, nil, cache.Metadata{}, fmt.Errorf("registry: got 304 for %s@%s with no prior cache entry", name, version)

	case http.StatusGone:
		return nil, nil, cache.Metadata{}, reason.New(reason.ErrRevoked,
			fmt.Sprintf("pack %s@%s has been revoked", name, version),
			map[string]string{"reason": resp.Header.Get("X-Revocation-Reason")})

	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, nil, cache.Metadata{}, fmt.Errorf("registry: reading pack body: %w", err)
		}
		digest, _, err := canon.FromYAML(body)
		if err != nil {
			return nil, nil, cache.Metadata{}, fmt.Errorf("registry: pack %s@%s failed to canonicalize: %w", name, version, err)
		}
		if want := resp.Header.Get("X-Pack-Digest"); want != "" && want != digest {
			return nil, nil, cache.Metadata{}, reason.New(reason.ErrDigestMismatch,
				fmt.Sprintf("pack %s@%s body does not match X-Pack-Digest", name, version),
				map[string]string{"expected": want, "actual": digest})
		}

		sig, signed, err := c.fetchSidecar(ctx, name, version, digest)
		if err != nil {
			return nil, nil, cache.Metadata{}, err
		}

		now := c.now()
		meta := cache.Metadata{
			Digest:    digest,
			ETag:      resp.Header.Get("ETag"),
			FetchedAt: now,
			ExpiresAt: cache.ExpiresAt(now, parseMaxAge(resp.Header.Get("Cache-Control"))),
			Signed:    signed,
		}
		return body, sig, meta, nil

	default:
		return nil, nil, cache.Metadata{}, &netutil.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

// fetchSidecar fetches and DSSE-verifies the detached signature for a
// pack body already known to digest to wantDigest. A 404 means the pack
// is unsigned, which is a valid (open-baseline) state, not an error.
func (c *Client) fetchSidecar(ctx context.Context, name, version, wantDigest string) ([]byte, bool, error) {
	path := fmt.Sprintf("/packs/%s/%s.sig", name, version)
	resp, err := c.doWithRetry(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &netutil.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	sigBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("registry: reading signature sidecar: %w", err)
	}

	env, err := parseDSSEEnvelope(sigBytes)
	if err != nil {
		return nil, false, err
	}
	if err := c.Trust.VerifyContent(env, wantDigest, c.now()); err != nil {
		return nil, false, err
	}
	return sigBytes, true, nil
}

// Versions returns the versions a registry advertises for name.
func (c *Client) Versions(ctx context.Context, name string) ([]string, error) {
	resp, err := c.doWithRetry(ctx, http.MethodGet, fmt.Sprintf("/packs/%s/versions", name), "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &netutil.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return decodeVersionsBody(resp.Body)
}

// doWithRetry issues one request, transparently handling bearer auth
// (including the single OIDC re-exchange on 401), 429 Retry-After, and
// bounded exponential backoff on 5xx, per spec.md §4.7.
func (c *Client) doWithRetry(ctx context.Context, method, path, etag string) (*http.Response, error) {
	attempt := 0
	forceTokenRefresh := false
	backoff := time.Second

	for {
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("registry: building request: %w", err)
		}
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		if c.OIDC != nil {
			tok, err := c.OIDC.Token(ctx, c.now(), forceTokenRefresh)
			if err != nil {
				return nil, fmt.Errorf("registry: obtaining bearer token: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		forceTokenRefresh = false

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("registry: request failed: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && c.OIDC != nil && attempt == 0:
			resp.Body.Close()
			forceTokenRefresh = true
			attempt++
			continue

		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			return nil, reason.New(reason.ErrUnauthorized, "registry request was not authorized", map[string]string{"path": path})

		case resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries:
			wait := retryAfter(resp.Header.Get("Retry-After"), backoff)
			resp.Body.Close()
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			backoff = capBackoff(backoff * 2)
			attempt++
			continue

		case resp.StatusCode >= 500 && attempt < maxRetries:
			resp.Body.Close()
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = capBackoff(backoff * 2)
			attempt++
			continue
		}

		return resp, nil
	}
}

func capBackoff(d time.Duration) time.Duration {
	const max = 30 * time.Second
	if d > max {
		return max
	}
	return d
}

func retryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseMaxAge(cacheControl string) int {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}
