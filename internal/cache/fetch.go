package cache

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// FetchFunc performs the actual registry round trip for name@version and
// returns the bytes to cache.
type FetchFunc func() (pack, sig []byte, meta Metadata, err error)

// Fetcher collapses concurrent cache misses for the same name@version
// into a single in-flight fetch, grounded on golang.org/x/sync/singleflight
// (already pulled in indirectly by otel/cel-go) — a direct fit for
// "concurrent readers are fine, single in-flight fetch" (spec.md §5).
type Fetcher struct {
	cache *Cache
	group singleflight.Group
}

func NewFetcher(c *Cache) *Fetcher {
	return &Fetcher{cache: c}
}

// GetOrFetch returns a cached, digest-verified entry for name@version,
// calling fetch at most once across any number of concurrent callers
// requesting the same key when no fresh entry is on disk.
func (f *Fetcher) GetOrFetch(name, version string, fetch FetchFunc) (*Entry, error) {
	key := name + "@" + version

	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		pack, sig, meta, err := fetch()
		if err != nil {
			return nil, err
		}
		if err := f.cache.Put(name, version, pack, sig, meta); err != nil {
			return nil, fmt.Errorf("cache: storing fetched %s: %w", key, err)
		}
		return &Entry{Pack: pack, Signature: sig, Metadata: meta}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}
