package byos

import (
	"context"
	"fmt"
)

// UnsupportedFetcher rejects every reference it is given with a clear,
// typed message rather than silently failing at the HTTP layer. az:// is
// the one BYOS scheme spec.md §3 names that has no corresponding SDK
// anywhere in the retrieval pack — wiring it would mean fabricating a
// dependency, which this module never does, so it is stubbed instead.
type UnsupportedFetcher struct {
	Scheme string
}

func (f UnsupportedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return nil, fmt.Errorf("byos: %s:// pack references are not supported by this build", f.Scheme)
}
