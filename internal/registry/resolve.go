package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/assayhq/assay/internal/canon"
)

// Resolved is a pack ready for compilation, regardless of which source
// in the resolution order served it.
type Resolved struct {
	Pack     []byte
	Digest   string
	Kind     Kind
	Signed   bool
	Verified bool
}

// BYOSFetcher abstracts the bring-your-own-storage backends (gs://,
// s3://, az://) so this package does not import cloud SDKs directly.
type BYOSFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Resolver implements spec.md §4.7's fixed pack-reference resolution
// order: explicit path -> bundled name -> local-config-dir name ->
// registry name@version -> BYOS URL -> NotFound. Pinned references
// never downgrade to unpinned: if the resolved digest does not match
// PinnedDigest, resolution fails rather than silently falling through.
type Resolver struct {
	Bundled        map[string][]byte // compiled-in baseline packs, keyed by name
	LocalConfigDir string            // e.g. $XDG_CONFIG_HOME/assay/packs
	Registry       *Client
	BYOS           BYOSFetcher
}

var ErrNotFound = fmt.Errorf("registry: pack not found by any resolution source")

func (r *Resolver) Resolve(ctx context.Context, reference string) (*Resolved, error) {
	ref, err := ParseRef(reference)
	if err != nil {
		return nil, err
	}

	resolved, err := r.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	if ref.PinnedDigest != "" && resolved.Digest != ref.PinnedDigest {
		return nil, fmt.Errorf("registry: pinned reference %s resolved to digest %s, refusing to downgrade", ref.Raw, resolved.Digest)
	}
	return resolved, nil
}

func (r *Resolver) resolveRef(ctx context.Context, ref Ref) (*Resolved, error) {
	switch ref.Kind {
	case KindLocalPath:
		return r.fromPath(ref.Path, KindLocalPath)

	case KindBundled:
		if b, ok := r.Bundled[ref.Name]; ok {
			return r.fromBytes(b, KindBundled)
		}
		if r.LocalConfigDir != "" {
			path := filepath.Join(r.LocalConfigDir, ref.Name+".yaml")
			if _, err := os.Stat(path); err == nil {
				return r.fromPath(path, KindLocalConfig)
			}
		}
		return nil, ErrNotFound

	case KindRegistry, KindPinnedRegistry:
		if r.Registry == nil {
			return nil, fmt.Errorf("registry: no registry client configured to resolve %s", ref.Raw)
		}
		entry, err := r.Registry.FetchPack(ctx, ref.Name, ref.Version)
		if err != nil {
			return nil, err
		}
		return &Resolved{Pack: entry.Pack, Digest: entry.Metadata.Digest, Kind: ref.Kind, Signed: entry.Metadata.Signed, Verified: entry.Metadata.Signed}, nil

	case KindBYOS:
		if r.BYOS == nil {
			return nil, fmt.Errorf("registry: no BYOS fetcher configured for %s", ref.Raw)
		}
		b, err := r.BYOS.Fetch(ctx, ref.URL)
		if err != nil {
			return nil, err
		}
		return r.fromBytes(b, KindBYOS)

	default:
		return nil, fmt.Errorf("registry: unrecognized reference kind for %q", ref.Raw)
	}
}

func (r *Resolver) fromPath(path string, kind Kind) (*Resolved, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: reading pack at %s: %w", path, err)
	}
	return r.fromBytes(b, kind)
}

func (r *Resolver) fromBytes(b []byte, kind Kind) (*Resolved, error) {
	digest, _, err := canon.FromYAML(b)
	if err != nil {
		return nil, fmt.Errorf("registry: pack failed to canonicalize: %w", err)
	}
	return &Resolved{Pack: b, Digest: digest, Kind: kind}, nil
}
