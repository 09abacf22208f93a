package bundle

import (
	"strings"
	"testing"
	"time"

	"github.com/assayhq/assay/internal/event"
	"github.com/assayhq/assay/internal/jsonstrict"
)

func sampleEvents(t *testing.T) []event.Envelope {
	t.Helper()
	data := jsonstrict.ObjectValue(&jsonstrict.Object{Members: []jsonstrict.Member{
		{Key: "tool_call_id", Value: jsonstrict.String("c1")},
		{Key: "tool_name", Value: jsonstrict.String("read_file")},
		{Key: "decision", Value: jsonstrict.String("allow")},
		{Key: "reason_code", Value: jsonstrict.String("P_ALLOWED")},
	}})
	e, err := event.New(event.Params{
		Type:            string(event.TypeToolDecision),
		Source:          "assay://replay",
		ID:              "evt-1",
		Time:            time.Unix(1000, 0),
		RunID:           "run-1",
		Seq:             0,
		Producer:        "assay",
		ProducerVersion: "0.1.0",
		DataContentType: "application/json",
		Data:            data,
	})
	if err != nil {
		t.Fatalf("unexpected error building event: %v", err)
	}
	return []event.Envelope{e}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	w := &Writer{RunID: "run-1", Producer: "assay", ProducedAt: time.Unix(1000, 0).UTC().Format(time.RFC3339)}
	out, err := w.Build(sampleEvents(t))
	if err != nil {
		t.Fatalf("unexpected error building bundle: %v", err)
	}
	b, err := Read(out, DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error reading bundle: %v", err)
	}
	if len(b.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(b.Events))
	}
	if b.Manifest.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", b.Manifest.RunID)
	}
}

func TestReadRejectsTamperedFileBytes(t *testing.T) {
	w := &Writer{RunID: "run-1", Producer: "assay"}
	out, err := w.Build(sampleEvents(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Flip a byte well inside the archive body (past tar/gzip headers)
	// so the manifest's recorded hash no longer matches.
	tampered := append([]byte{}, out...)
	for i := len(tampered) - 1; i >= 0; i-- {
		if tampered[i] != 0xff {
			tampered[i] ^= 0xff
			break
		}
	}
	if _, err := Read(tampered, DefaultLimits()); err == nil {
		t.Fatalf("expected tampered bundle to fail verification")
	}
}

func TestReadRejectsOversizedCompressed(t *testing.T) {
	w := &Writer{RunID: "run-1", Producer: "assay"}
	out, err := w.Build(sampleEvents(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	limits := DefaultLimits()
	limits.MaxCompressedBytes = 1
	if _, err := Read(out, limits); err == nil {
		t.Fatalf("expected oversized-compressed rejection")
	}
}

func TestReadRejectsTooManyEvents(t *testing.T) {
	w := &Writer{RunID: "run-1", Producer: "assay"}
	evs := sampleEvents(t)
	out, err := w.Build(evs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	limits := DefaultLimits()
	limits.MaxEvents = 0
	if _, err := Read(out, limits); err == nil {
		t.Fatalf("expected max-events rejection")
	}
}

func TestValidatePathRejectsTraversalAndAbsolute(t *testing.T) {
	cases := []string{"../etc/passwd", "/etc/passwd", "a/../b", "a\x00b"}
	for _, c := range cases {
		if err := validatePath(c); err == nil {
			t.Fatalf("expected rejection for path %q", c)
		}
	}
	if err := validatePath("manifest.json"); err != nil {
		t.Fatalf("unexpected rejection of valid path: %v", err)
	}
}

func TestSanitizeStripsEscapeSequences(t *testing.T) {
	in := "hello\x1b[31mRED\x1b[0mworld\x07bell"
	out := Sanitize(in)
	if strings.Contains(out, "\x1b") || strings.Contains(out, "\x07") {
		t.Fatalf("expected escape/bell stripped, got %q", out)
	}
	if !strings.Contains(out, "helloREDworld") {
		t.Fatalf("expected visible text preserved, got %q", out)
	}
}

func TestSanitizeReplacesControlChars(t *testing.T) {
	out := Sanitize("a\x01b")
	if !strings.Contains(out, "�") {
		t.Fatalf("expected replacement char in output, got %q", out)
	}
}
