// Package bundle implements the Assay evidence bundle: a deterministic
// gzip-compressed tar archive carrying a run's manifest and event
// stream, built to be byte-canonical for a canonical writer and
// adversarially re-verified on read.
//
// Structure and ordering are grounded on mcptrust's
// internal/bundler.CreateBundle/GenerateManifest pair (manifest-first,
// fixed member order, zeroed timestamps), generalized here from a zip
// archive of lockfile/signature/policy files to a tar.gz archive of a
// run manifest and an NDJSON event stream.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/assayhq/assay/internal/jsonstrict"
)

// SchemaVersion is always 1 for the v1 bundle format (spec.md §3).
const SchemaVersion = 1

// ManifestFile is one archived entry's accounting record.
type ManifestFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest is the bundle's manifest.json contents.
type Manifest struct {
	SchemaVersion int            `json:"schema_version"`
	RunID         string         `json:"run_id"`
	ProducedAt    string         `json:"produced_at"`
	Producer      string         `json:"producer"`
	Files         []ManifestFile `json:"files"`
	MerkleRoot    string         `json:"merkle_root"`
}

// buildManifest sorts entries by path and computes the Merkle root over
// them, matching mcptrust's GenerateManifest's stable sort-then-hash
// shape.
func buildManifest(runID, producer, producedAt string, files []ManifestFile) Manifest {
	sorted := make([]ManifestFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	return Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		ProducedAt:    producedAt,
		Producer:      producer,
		Files:         sorted,
		MerkleRoot:    merkleRoot(sorted),
	}
}

// merkleRoot computes a simple binary Merkle tree over the sorted
// entries' "path:sha256" leaf hashes, folding an odd trailing node
// forward unchanged.
func merkleRoot(files []ManifestFile) string {
	if len(files) == 0 {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:])
	}
	level := make([][32]byte, len(files))
	for i, f := range files {
		level[i] = sha256.Sum256([]byte(f.Path + ":" + f.SHA256))
	}
	for len(level) > 1 {
		var next [][32]byte
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				combined := append(append([]byte{}, level[i][:]...), level[i+1][:]...)
				next = append(next, sha256.Sum256(combined))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return hex.EncodeToString(level[0][:])
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// parseManifest strictly parses manifest bytes and rejects duplicate
// keys at any nesting (spec.md §3: "Duplicate keys at any nesting
// anywhere in manifest or events MUST cause rejection").
func parseManifest(data []byte) (Manifest, error) {
	if _, err := jsonstrict.Parse(data); err != nil {
		return Manifest{}, fmt.Errorf("bundle: manifest.json failed strict parse: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("bundle: manifest.json does not match schema: %w", err)
	}
	return m, nil
}
