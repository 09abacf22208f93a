// Package lockfile implements the Lockfile Manager (spec.md §4.9): a
// deterministic, sorted YAML record of every resolved pack and its
// canonical digest, consulted on every resolution to pin packs against
// drift and surface revocations with a suggested safe replacement.
//
// Grounded on mcptrust's internal/locker.Manager (Save/Load over a
// models.Lockfile, sorted-map JSON persistence) and internal/locker's
// DriftItem shape for reporting what changed between two lockfiles —
// adapted here from "scanned MCP tool fingerprints" to "resolved
// compliance packs pinned by canonical digest", and from JSON to YAML
// per spec.md §4.9's file format.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/assayhq/assay/internal/reason"
	"github.com/assayhq/assay/internal/registry"
)

// LockedPack is one pinned entry: a pack name, the version resolved at
// lock time, and its canonical digest.
type LockedPack struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Digest  string `yaml:"digest"`
}

// Lockfile is the full pinned set, always serialized sorted ascending by
// name (spec.md §4.9: "Sort order: ascending by pack name").
type Lockfile struct {
	SchemaVersion int          `yaml:"schema_version"`
	Packs         []LockedPack `yaml:"packs"`
}

const schemaVersion = 1

// New builds a Lockfile from a set of resolved packs, sorting them by
// name so that the same set of resolved packs always serializes to the
// same bytes regardless of resolution order (spec.md §4.9: "same set of
// resolved packs => byte-identical lockfile").
func New(packs []LockedPack) *Lockfile {
	sorted := append([]LockedPack(nil), packs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &Lockfile{SchemaVersion: schemaVersion, Packs: sorted}
}

// find returns the locked entry for name, or false if name is not
// pinned.
func (l *Lockfile) find(name string) (LockedPack, bool) {
	for _, p := range l.Packs {
		if p.Name == name {
			return p, true
		}
	}
	return LockedPack{}, false
}

// Load reads and parses a lockfile from path.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: reading %s: %w", path, err)
	}
	var l Lockfile
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("lockfile: parsing %s: %w", path, err)
	}
	sort.Slice(l.Packs, func(i, j int) bool { return l.Packs[i].Name < l.Packs[j].Name })
	return &l, nil
}

// Save serializes l (sorted by name) and writes it to path.
func (l *Lockfile) Save(path string) error {
	sorted := New(l.Packs)
	data, err := yaml.Marshal(sorted)
	if err != nil {
		return fmt.Errorf("lockfile: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("lockfile: writing %s: %w", path, err)
	}
	return nil
}

// Mode selects how the resolver reconciles a resolution against an
// existing lockfile (spec.md §4.9).
type Mode int

const (
	// ModeLocked forbids any pack not already present in the lockfile.
	ModeLocked Mode = iota
	// ModeUpdate appends newly resolved, previously-unlocked packs.
	ModeUpdate
)

// VersionLister reports the versions a registry advertises for a pack
// name, used to suggest a safe replacement when a locked pack is
// revoked.
type VersionLister interface {
	Versions(name string) ([]string, error)
}

// Manager resolves pack references against a Resolver while enforcing
// an existing Lockfile's pins.
type Manager struct {
	Resolver *registry.Resolver
	Versions VersionLister // optional; nil disables safe-version suggestions
}

// NewManager builds a Manager over an already-configured resolver.
func NewManager(resolver *registry.Resolver, versions VersionLister) *Manager {
	return &Manager{Resolver: resolver, Versions: versions}
}

// Resolve resolves name@version against lock (which may be nil, meaning
// no lockfile exists yet) in the given mode, returning the resolved pack
// bytes and digest plus the lockfile entry to persist.
//
// - If lock pins name to a digest, the resolved pack's digest must match
//   exactly; any mismatch is a hard error, never an override (spec.md
//   §4.9: "must not return a pack whose digest differs from the locked
//   digest").
// - If lock does not pin name: ModeLocked refuses the addition;
//   ModeUpdate allows it and returns the new entry to append.
func (m *Manager) Resolve(ctx context.Context, lock *Lockfile, name, version string, mode Mode) (*registry.Resolved, LockedPack, error) {
	reference := name
	if version != "" {
		reference = name + "@" + version
	}

	resolved, err := m.Resolver.Resolve(ctx, reference)
	if err != nil {
		if rerr, ok := err.(*reason.Error); ok && rerr.Code == reason.ErrRevoked {
			return nil, LockedPack{}, m.revokedError(name, rerr)
		}
		return nil, LockedPack{}, err
	}

	entry := LockedPack{Name: name, Version: version, Digest: resolved.Digest}

	if lock == nil {
		if mode == ModeLocked {
			return nil, LockedPack{}, fmt.Errorf("lockfile: %s is not pinned and --locked forbids unlocked additions", name)
		}
		return resolved, entry, nil
	}

	locked, pinned := lock.find(name)
	if !pinned {
		if mode == ModeLocked {
			return nil, LockedPack{}, fmt.Errorf("lockfile: %s is not in the lockfile and --locked forbids unlocked additions", name)
		}
		return resolved, entry, nil
	}

	if locked.Digest != resolved.Digest {
		return nil, LockedPack{}, fmt.Errorf("lockfile: %s resolved to digest %s, which does not match the locked digest %s",
			name, resolved.Digest, locked.Digest)
	}
	return resolved, locked, nil
}

// revokedError builds the "Revoked with explicit suggested safe
// version" error spec.md §4.9 requires, consulting Versions if
// available.
func (m *Manager) revokedError(name string, rerr *reason.Error) error {
	suggestion := ""
	if m.Versions != nil {
		if versions, err := m.Versions.Versions(name); err == nil && len(versions) > 0 {
			suggestion = versions[len(versions)-1]
		}
	}
	ctx := map[string]string{}
	for k, v := range rerr.Context {
		ctx[k] = v
	}
	if suggestion != "" {
		ctx["suggested_safe_version"] = suggestion
	}
	return reason.New(reason.ErrRevoked, fmt.Sprintf("%s is revoked", name), ctx)
}
