package canon

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/assayhq/assay/internal/jsonstrict"
	"github.com/assayhq/assay/internal/yamlstrict"
)

// Digest computes the "sha256:<hex>" content digest of v's canonical
// bytes, following mcptrust's locker/hasher* "sha256:"-prefixed digest
// convention used throughout the lockfile and bundle formats.
func Digest(v jsonstrict.Value) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(b), nil
}

// DigestBytes hashes already-canonical bytes directly, for callers (e.g.
// the bundle writer) that stream canonical output rather than building it
// in memory.
func DigestBytes(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// FromJSON canonicalizes and digests a strict JSON document in one step.
func FromJSON(data []byte) (string, jsonstrict.Value, error) {
	v, err := jsonstrict.Parse(data)
	if err != nil {
		return "", jsonstrict.Value{}, err
	}
	d, err := Digest(v)
	if err != nil {
		return "", jsonstrict.Value{}, err
	}
	return d, v, nil
}

// FromYAML canonicalizes and digests a strict YAML document, so a pack
// manifest authored in YAML digests identically to its JSON-equivalent
// form (spec.md §4.3: digest is over canonical bytes, independent of
// source syntax).
func FromYAML(data []byte) (string, jsonstrict.Value, error) {
	v, err := yamlstrict.Parse(data)
	if err != nil {
		return "", jsonstrict.Value{}, err
	}
	d, err := Digest(v)
	if err != nil {
		return "", jsonstrict.Value{}, err
	}
	return d, v, nil
}
