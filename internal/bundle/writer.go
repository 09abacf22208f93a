package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/assayhq/assay/internal/canon"
	"github.com/assayhq/assay/internal/event"
	"github.com/assayhq/assay/internal/jsonstrict"
)

// memberOrder is the fixed archive member order spec.md §3 requires:
// manifest.json first, then events.ndjson, then any signature sidecars.
const (
	manifestName = "manifest.json"
	eventsName   = "events.ndjson"
)

// Writer builds a bundle from run metadata and a stream of events.
type Writer struct {
	RunID      string
	Producer   string
	ProducedAt string
	// Sidecars are optional additional files (e.g. detached signatures)
	// appended after events.ndjson in the name they're given here.
	Sidecars map[string][]byte
}

// Build serializes events (already constructed and content-hash-verified
// by the caller) into a canonical .tar.gz, self-verifying the output
// before returning it (spec.md §4.5: "the writer invokes the verifier on
// its own output and fails if verification fails").
func (w *Writer) Build(events []event.Envelope) ([]byte, error) {
	eventsBody, err := encodeEventsNDJSON(events)
	if err != nil {
		return nil, fmt.Errorf("bundle: encoding events.ndjson: %w", err)
	}

	files := []ManifestFile{
		{Path: eventsName, Size: int64(len(eventsBody)), SHA256: hashBytes(eventsBody)},
	}
	sidecarNames := make([]string, 0, len(w.Sidecars))
	for name := range w.Sidecars {
		sidecarNames = append(sidecarNames, name)
	}
	sortStrings(sidecarNames)
	for _, name := range sidecarNames {
		if err := validatePath(name); err != nil {
			return nil, err
		}
		body := w.Sidecars[name]
		files = append(files, ManifestFile{Path: name, Size: int64(len(body)), SHA256: hashBytes(body)})
	}

	manifest := buildManifest(w.RunID, w.Producer, w.ProducedAt, files)
	manifestBody, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundle: encoding manifest.json: %w", err)
	}

	var raw bytes.Buffer
	gz := newDeterministicGzipWriter(&raw)
	tw := tar.NewWriter(gz)

	if err := writeTarEntry(tw, manifestName, manifestBody); err != nil {
		return nil, err
	}
	if err := writeTarEntry(tw, eventsName, eventsBody); err != nil {
		return nil, err
	}
	for _, name := range sidecarNames {
		if err := writeTarEntry(tw, name, w.Sidecars[name]); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("bundle: closing gzip writer: %w", err)
	}

	out := raw.Bytes()
	if _, err := Read(out, DefaultLimits()); err != nil {
		return nil, fmt.Errorf("bundle: self-verification of freshly written bundle failed: %w", err)
	}
	return out, nil
}

// newDeterministicGzipWriter fixes the gzip header fields spec.md §3
// requires for hash-identical output: mtime=0, OS=255 (unknown).
func newDeterministicGzipWriter(w *bytes.Buffer) *gzip.Writer {
	gz, _ := gzip.NewWriterLevel(w, gzip.BestCompression)
	// gz.Header.ModTime is already the zero Time, which gzip encodes as
	// mtime=0; only OS needs to be pinned away from the platform default.
	gz.Header.OS = 255
	return gz
}

// writeTarEntry appends name/body with the tar header fields zeroed per
// spec.md §4.5 (uid, gid, mtime, uname, gname) so output is
// hash-identical across systems and runs.
func writeTarEntry(tw *tar.Writer, name string, body []byte) error {
	if err := validatePath(name); err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(body)),
		Typeflag: tar.TypeReg,
		Uid:      0,
		Gid:      0,
		Uname:    "",
		Gname:    "",
		// ModTime left at its zero value (Unix epoch).
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("bundle: writing tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(body); err != nil {
		return fmt.Errorf("bundle: writing tar body for %s: %w", name, err)
	}
	return nil
}

// validatePath enforces spec.md §4.5's path-safety rule: POSIX-relative,
// no ".." components, no NUL bytes.
func validatePath(name string) error {
	if name == "" {
		return fmt.Errorf("bundle: empty archive path")
	}
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("bundle: path %q contains NUL", name)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("bundle: path %q must not be absolute", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return fmt.Errorf("bundle: path %q contains a '..' component", name)
		}
	}
	return nil
}

// encodeEventsNDJSON renders one RFC 8785 canonical event per line,
// LF-only, UTF-8 with no BOM (spec.md §4.5, §6.1). encoding/json.Marshal
// is only ever used here to get each Envelope into JSON bytes at all
// (Go struct -> JSON); those bytes are then strict-parsed and rewritten
// through internal/canon so field order and escaping follow JCS rather
// than Go's declaration order and HTML-escaping defaults.
func encodeEventsNDJSON(events []event.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encoding event %s/%d: %w", e.RunID, e.Seq, err)
		}
		value, err := jsonstrict.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("strict-parsing event %s/%d: %w", e.RunID, e.Seq, err)
		}
		if err := canon.Write(&buf, value); err != nil {
			return nil, fmt.Errorf("canonicalizing event %s/%d: %w", e.RunID, e.Seq, err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
