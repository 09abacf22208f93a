package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/assayhq/assay/internal/event"
	"github.com/assayhq/assay/internal/jsonstrict"
)

// Limits bounds the resources a Reader will spend decoding an untrusted
// bundle (spec.md §4.5, "Applies resource limits before any parsing").
type Limits struct {
	MaxCompressedBytes   int64
	MaxDecompressedBytes int64
	MaxEvents            int
	MaxCompressionRatio  int64
}

// DefaultLimits returns the limits named in spec.md §4.5.
func DefaultLimits() Limits {
	return Limits{
		MaxCompressedBytes:   100 << 20,
		MaxDecompressedBytes: 1 << 30,
		MaxEvents:            100000,
		MaxCompressionRatio:  10,
	}
}

// Bundle is a fully verified, in-memory bundle.
type Bundle struct {
	Manifest Manifest
	Events   []event.Envelope
	Sidecars map[string][]byte
}

// limitedReader tracks decompressed bytes read through it so the
// compression-ratio and max-decompressed checks can abort mid-stream
// rather than after a gzip bomb has already been fully inflated.
type limitedReader struct {
	r         io.Reader
	read      int64
	max       int64
	compLen   int64
	maxRatio  int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.max {
		return n, fmt.Errorf("bundle: decompressed size exceeds limit of %d bytes", l.max)
	}
	if l.compLen > 0 && l.maxRatio > 0 && l.read > l.compLen*l.maxRatio {
		return n, fmt.Errorf("bundle: decompression ratio exceeds %dx, suspected bomb", l.maxRatio)
	}
	return n, err
}

// Read parses, resource-limits, and fully verifies a bundle's bytes. It
// treats data as adversarial throughout (spec.md §4.5).
func Read(data []byte, limits Limits) (*Bundle, error) {
	if int64(len(data)) > limits.MaxCompressedBytes {
		return nil, fmt.Errorf("bundle: compressed size %d exceeds limit of %d bytes", len(data), limits.MaxCompressedBytes)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bundle: invalid gzip stream: %w", err)
	}
	defer gzr.Close()

	lr := &limitedReader{
		r:        gzr,
		max:      limits.MaxDecompressedBytes,
		compLen:  int64(len(data)),
		maxRatio: limits.MaxCompressionRatio,
	}
	tr := tar.NewReader(lr)

	rawFiles := map[string][]byte{}
	var order []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: reading tar stream: %w", err)
		}
		if err := validatePath(hdr.Name); err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("bundle: reading entry %s: %w", hdr.Name, err)
		}
		rawFiles[hdr.Name] = body
		order = append(order, hdr.Name)
	}

	manifestBody, ok := rawFiles[manifestName]
	if !ok {
		return nil, fmt.Errorf("bundle: missing %s", manifestName)
	}
	manifest, err := parseManifest(manifestBody)
	if err != nil {
		return nil, err
	}
	if manifest.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("bundle: unsupported schema_version %d", manifest.SchemaVersion)
	}

	for _, f := range manifest.Files {
		body, ok := rawFiles[f.Path]
		if !ok {
			return nil, fmt.Errorf("bundle: manifest references missing file %q", f.Path)
		}
		if int64(len(body)) != f.Size {
			return nil, fmt.Errorf("bundle: size mismatch for %q: manifest says %d, archive has %d", f.Path, f.Size, len(body))
		}
		if got := hashBytes(body); got != f.SHA256 {
			return nil, fmt.Errorf("bundle: sha256 mismatch for %q: manifest says %s, archive has %s", f.Path, f.SHA256, got)
		}
	}
	if got := merkleRoot(manifest.Files); got != manifest.MerkleRoot {
		return nil, fmt.Errorf("bundle: merkle root mismatch: manifest says %s, computed %s", manifest.MerkleRoot, got)
	}

	eventsBody, ok := rawFiles[eventsName]
	if !ok {
		return nil, fmt.Errorf("bundle: missing %s", eventsName)
	}
	events, err := parseEventsNDJSON(eventsBody, limits.MaxEvents)
	if err != nil {
		return nil, err
	}

	sidecars := map[string][]byte{}
	for name, body := range rawFiles {
		if name == manifestName || name == eventsName {
			continue
		}
		sidecars[name] = body
	}

	return &Bundle{Manifest: manifest, Events: events, Sidecars: sidecars}, nil
}

func parseEventsNDJSON(body []byte, maxEvents int) ([]event.Envelope, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	var events []event.Envelope
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo > maxEvents {
			return nil, fmt.Errorf("bundle: events.ndjson exceeds max event count of %d", maxEvents)
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if _, err := jsonstrict.Parse(line); err != nil {
			return nil, fmt.Errorf("bundle: events.ndjson line %d failed strict parse: %w", lineNo, err)
		}
		var e event.Envelope
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("bundle: events.ndjson line %d does not match event schema: %w", lineNo, err)
		}
		if err := e.Verify(); err != nil {
			return nil, fmt.Errorf("bundle: events.ndjson line %d: %w", lineNo, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bundle: scanning events.ndjson: %w", err)
	}
	return events, nil
}
