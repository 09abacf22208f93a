package registry

import (
	"fmt"
	"strings"
)

// Kind identifies which of spec.md §3's six pack-reference forms a Ref
// parsed from.
type Kind int

const (
	KindLocalPath Kind = iota
	KindBundled
	KindLocalConfig
	KindRegistry
	KindPinnedRegistry
	KindBYOS
)

// Ref is a parsed pack reference, before resolution has decided which
// source actually serves it.
type Ref struct {
	Kind         Kind
	Raw          string
	Path         string // KindLocalPath
	Name         string // KindBundled, KindLocalConfig, KindRegistry, KindPinnedRegistry
	Version      string // KindRegistry, KindPinnedRegistry
	PinnedDigest string // KindPinnedRegistry, e.g. "sha256:<hex>"
	URL          string // KindBYOS
	Scheme       string // KindBYOS: "s3", "gs", "az"
}

// ParseRef classifies a reference string by its syntax alone (a),(d),(e),(f)
// are unambiguous; (b) bundled vs (c) local-config-dir share the same bare
// "name" syntax and are disambiguated later, by which source actually has
// that name, per the fixed resolution order.
func ParseRef(s string) (Ref, error) {
	if s == "" {
		return Ref{}, fmt.Errorf("registry: empty pack reference")
	}

	if scheme, ok := byosScheme(s); ok {
		return Ref{Kind: KindBYOS, Raw: s, URL: s, Scheme: scheme}, nil
	}

	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		return Ref{Kind: KindLocalPath, Raw: s, Path: s}, nil
	}

	if at := strings.IndexByte(s, '@'); at >= 0 {
		name := s[:at]
		rest := s[at+1:]
		if name == "" {
			return Ref{}, fmt.Errorf("registry: pack reference %q has an empty name", s)
		}
		if hash := strings.IndexByte(rest, '#'); hash >= 0 {
			version := rest[:hash]
			pin := rest[hash+1:]
			if !strings.HasPrefix(pin, "sha256:") {
				return Ref{}, fmt.Errorf("registry: pinned reference %q must pin a sha256 digest", s)
			}
			return Ref{Kind: KindPinnedRegistry, Raw: s, Name: name, Version: version, PinnedDigest: pin}, nil
		}
		if rest == "" {
			return Ref{}, fmt.Errorf("registry: pack reference %q has an empty version", s)
		}
		return Ref{Kind: KindRegistry, Raw: s, Name: name, Version: rest}, nil
	}

	// Bare name: could be (b) bundled or (c) local-config-dir; the
	// resolver tries both, in that order, before falling through.
	return Ref{Kind: KindBundled, Raw: s, Name: s}, nil
}

func byosScheme(s string) (string, bool) {
	for _, scheme := range []string{"s3://", "gs://", "az://"} {
		if strings.HasPrefix(s, scheme) {
			return strings.TrimSuffix(scheme, "://"), true
		}
	}
	return "", false
}
