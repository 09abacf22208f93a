// Package trust implements the Assay trust store and DSSE verifier:
// pinned root keys seeded at process start, extended only by verified
// keys-manifest entries, with a brick-resistance invariant that remote
// manifests can never revoke a pinned root (spec.md §4.6).
//
// Ed25519 key handling is grounded on mcptrust's internal/crypto
// (PEM-encoded keys, crypto/ed25519.Sign/Verify); the envelope-with-
// header shape of crypto/signature.go's SignatureHeader is the
// structural model for DSSEEnvelope in dsse.go.
package trust

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"
)

// Key is one trust store entry (spec.md §4.6).
type Key struct {
	ID         string // "sha256:<hex of SPKI DER>"
	Algorithm  string // "Ed25519" for v1
	Public     ed25519.PublicKey
	NotBefore  time.Time
	ExpiresAt  time.Time
	Revoked    bool
	Pinned     bool
}

// usable reports whether k may currently be used to verify a signature.
func (k Key) usable(now time.Time) error {
	if k.Revoked {
		return fmt.Errorf("trust: key %s is revoked", k.ID)
	}
	if now.Before(k.NotBefore) || now.After(k.ExpiresAt) {
		return fmt.Errorf("trust: key %s is outside its validity window", k.ID)
	}
	if k.Algorithm != "Ed25519" {
		return fmt.Errorf("trust: key %s uses unsupported algorithm %q", k.ID, k.Algorithm)
	}
	return nil
}

// Store is an in-memory, process-lifetime set of trusted signing keys.
type Store struct {
	mu   sync.RWMutex
	keys map[string]Key
}

// NewStore seeds a Store with a non-empty set of pinned root keys
// (spec.md §4.6: "seeded at process start with a non-empty set of
// pinned root key IDs"). Every entry is marked Pinned regardless of its
// Pinned field, since anything passed here at construction is by
// definition a root.
func NewStore(pinnedRoots []Key) (*Store, error) {
	if len(pinnedRoots) == 0 {
		return nil, fmt.Errorf("trust: at least one pinned root key is required")
	}
	s := &Store{keys: make(map[string]Key, len(pinnedRoots))}
	for _, k := range pinnedRoots {
		k.Pinned = true
		s.keys[k.ID] = k
	}
	return s, nil
}

// Lookup returns the key for id and whether it is present.
func (s *Store) Lookup(id string) (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	return k, ok
}

// Verified returns k usable at now, or an error explaining why not.
func (s *Store) Verified(id string, now time.Time) (Key, error) {
	k, ok := s.Lookup(id)
	if !ok {
		return Key{}, fmt.Errorf("trust: key %s is not known to this store: %w", id, ErrKeyNotTrusted)
	}
	if err := k.usable(now); err != nil {
		return Key{}, err
	}
	return k, nil
}

// ApplyManifest merges keys from a verified keys manifest into the
// store. Every key in keys must already have passed DSSE verification
// against a pinned root before reaching this call — ApplyManifest itself
// only enforces the brick-resistance invariant and update semantics.
func (s *Store) ApplyManifest(keys []Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		existing, ok := s.keys[k.ID]
		if ok && existing.Pinned {
			// Brick-resistance invariant: a remote manifest can update
			// everything about a pinned root except revoke it.
			if k.Revoked {
				return fmt.Errorf("trust: refusing to let a remote manifest revoke pinned root %s", k.ID)
			}
			k.Pinned = true
		} else {
			k.Pinned = false
		}
		s.keys[k.ID] = k
	}
	return nil
}
