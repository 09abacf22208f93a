// Package event implements the Assay evidence event envelope: a
// CloudEvents-shaped record carrying a content-addressed payload digest,
// plus the closed registry of stable event types that may populate it.
//
// Structurally this mirrors mcptrust's plain-value report structs
// (internal/models) rather than any shared mutable state — an Envelope
// is built once, never edited in place, and its content hash is
// recomputed (never trusted) by the verifier on read.
package event

import (
	"fmt"
	"time"

	"github.com/assayhq/assay/internal/canon"
	"github.com/assayhq/assay/internal/jsonstrict"
)

// Envelope is one evidence event record (spec.md §4.4).
type Envelope struct {
	// CloudEvents-required attributes.
	SpecVersion string `json:"specversion"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	ID          string `json:"id"`

	// Assay-required attributes.
	Time                string          `json:"time"`
	RunID               string          `json:"assayrunid"`
	Seq                 uint64          `json:"assayseq"`
	Producer            string          `json:"assayproducer"`
	ProducerVersion      string          `json:"assayproducerversion"`
	DataContentType      string          `json:"datacontenttype"`
	Data                 jsonstrict.Value `json:"data"`
	ContentHash          string          `json:"assaycontenthash"`

	// Optional passthrough attributes.
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
	Subject     string `json:"subject,omitempty"`
}

// Params bundles the construction inputs for New, so per-field ordering
// mistakes at call sites (RunID vs Producer, both strings) aren't
// possible.
type Params struct {
	Type            string
	Source          string
	ID              string
	Time            time.Time
	RunID           string
	Seq             uint64
	Producer        string
	ProducerVersion string
	DataContentType string
	Data            jsonstrict.Value
	TraceParent     string
	TraceState      string
	Subject         string
}

// New builds an envelope and computes assaycontenthash over Data's
// canonical bytes (spec.md §4.4: "computes assaycontenthash =
// compute_canonical_digest(data) and stores it").
func New(p Params) (Envelope, error) {
	if !Registered(p.Type) {
		return Envelope{}, fmt.Errorf("event: type %q is not in the registered event-type set", p.Type)
	}
	hash, err := canon.Digest(p.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("event: computing content hash: %w", err)
	}
	return Envelope{
		SpecVersion:     "1.0",
		Type:            p.Type,
		Source:          p.Source,
		ID:              p.ID,
		Time:            p.Time.UTC().Format(time.RFC3339),
		RunID:           p.RunID,
		Seq:             p.Seq,
		Producer:        p.Producer,
		ProducerVersion: p.ProducerVersion,
		DataContentType: p.DataContentType,
		Data:            p.Data,
		ContentHash:     hash,
		TraceParent:     p.TraceParent,
		TraceState:      p.TraceState,
		Subject:         p.Subject,
	}, nil
}

// Verify recomputes assaycontenthash from e.Data and checks it against
// the stored value — a reader never trusts the stored hash as-is.
func (e Envelope) Verify() error {
	want, err := canon.Digest(e.Data)
	if err != nil {
		return fmt.Errorf("event: recomputing content hash: %w", err)
	}
	if want != e.ContentHash {
		return fmt.Errorf("event: content hash mismatch for %s/%d: stored %s, computed %s", e.RunID, e.Seq, e.ContentHash, want)
	}
	if e.SpecVersion != "1.0" {
		return fmt.Errorf("event: unsupported specversion %q", e.SpecVersion)
	}
	if e.Type == "" || e.Source == "" || e.ID == "" {
		return fmt.Errorf("event: missing required CloudEvents attribute")
	}
	return nil
}
