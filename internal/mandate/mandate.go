// Package mandate implements signed user-authorization records (spec.md
// Data Model "Mandate", §4.11 item 3): scoped tool-call permission with a
// validity window, optional single-use enforcement, and idempotent
// consumption keyed by tool_call_id.
//
// Split out of the Policy Decision Core for clarity, per SPEC_FULL.md §2.
// The idempotency-key shape (hash of two ids, looked up before mutating
// state) is the same pattern mcptrust's locker package uses to derive
// stable hashes from report fields (HashString/HashJSON), generalized
// here to a per-mandate, per-call consumption key.
package mandate

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Kind distinguishes an intent mandate (authorizes a class of future
// calls) from a transaction mandate (authorizes one concrete operation).
type Kind string

const (
	KindIntent      Kind = "intent"
	KindTransaction Kind = "transaction"
)

// Scope bounds what a mandate authorizes: a set of allowed tool names (or
// glob patterns), an operation class tag, and an optional maximum value
// for transaction mandates (e.g. a purchase ceiling).
type Scope struct {
	AllowedTools   []string `json:"allowed_tools" yaml:"allowed_tools"`
	OperationClass string   `json:"operation_class,omitempty" yaml:"operation_class,omitempty"`
	MaxValue       *float64 `json:"max_value,omitempty" yaml:"max_value,omitempty"`
}

// Covers reports whether toolName falls within the scope's allowed-tools
// set, supporting a trailing "*" glob suffix (e.g. "fs.write*").
func (s Scope) Covers(toolName string) bool {
	for _, pattern := range s.AllowedTools {
		if matchToolGlob(pattern, toolName) {
			return true
		}
	}
	return false
}

func matchToolGlob(pattern, name string) bool {
	if pattern == name {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}
	return false
}

// Mandate is a signed authorization record.
type Mandate struct {
	ID        string    `json:"id" yaml:"id"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Scope     Scope     `json:"scope" yaml:"scope"`
	Issuer    string    `json:"issuer" yaml:"issuer"`
	Audience  string    `json:"audience" yaml:"audience"`
	NotBefore time.Time `json:"not_before" yaml:"not_before"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
	SingleUse bool      `json:"single_use" yaml:"single_use"`
	Revoked   bool      `json:"revoked" yaml:"revoked"`
}

// skew is the clock-skew tolerance spec.md §4.11 grants to not_before and
// expires_at checks; revocation gets zero tolerance by design.
const skew = 30 * time.Second

// ValidAt reports whether the mandate's validity window covers now,
// within the fixed skew tolerance. Revocation is checked separately by
// the caller (zero skew, never relaxed here).
func (m Mandate) ValidAt(now time.Time) bool {
	if !m.NotBefore.IsZero() && now.Add(skew).Before(m.NotBefore) {
		return false
	}
	if !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt.Add(skew)) {
		return false
	}
	return true
}

// UseID derives the deduplication key for a single-use mandate's
// consumption event: hash(mandate_id, tool_call_id), per spec.md §4.11
// item 3 and Testable Property 12.
func UseID(mandateID, toolCallID string) string {
	h := sha256.Sum256([]byte(mandateID + "\x00" + toolCallID))
	return hex.EncodeToString(h[:])
}

// Receipt is the outcome of attempting to consume a mandate for one tool
// call: the use_id, the observed use_count, and whether this call was the
// one that incremented it (false on a dedup-hit retry).
type Receipt struct {
	UseID      string
	UseCount   int
	FirstUse   bool
}

// consumption records which tool_call_id first spent a single-use
// mandate. Keyed by mandate_id (not use_id): a single-use mandate has
// exactly one legitimate consumer, so tracking "who used it" rather
// than "was this specific (mandate_id, tool_call_id) pair seen before"
// is what makes a second, distinct tool_call_id a real M_ALREADY_USED
// denial instead of a fresh, independently-idempotent use.
type consumption struct {
	toolCallID string
	useID      string
	useCount   int
}

// Ledger tracks single-use mandate consumption, protected by a mutex
// with compare-and-swap semantics (spec.md §5: "a retry with the same
// tool_call_id observes use_count=existing without incrementing").
type Ledger struct {
	mu   sync.Mutex
	used map[string]consumption // mandate_id -> first consumption
}

func NewLedger() *Ledger {
	return &Ledger{used: make(map[string]consumption)}
}

// Consume attempts to record one use of mandateID by toolCallID. Calling
// it twice with the same (mandateID, toolCallID) pair is idempotent: the
// second call returns the same Receipt (FirstUse=false) without
// incrementing anything, so the caller emits exactly one
// assay.mandate.used.v1 event per logical use (Testable Property 12).
// Calling it with the same mandateID but a *different* toolCallID after
// the mandate has already been consumed returns ErrAlreadyUsed: a
// single-use mandate authorizes exactly one tool call, not one call per
// distinct tool_call_id.
func (l *Ledger) Consume(mandateID, toolCallID string) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.used[mandateID]; ok {
		if c.toolCallID != toolCallID {
			return Receipt{}, ErrAlreadyUsed
		}
		return Receipt{UseID: c.useID, UseCount: c.useCount, FirstUse: false}, nil
	}
	useID := UseID(mandateID, toolCallID)
	l.used[mandateID] = consumption{toolCallID: toolCallID, useID: useID, useCount: 1}
	return Receipt{UseID: useID, UseCount: 1, FirstUse: true}, nil
}

// ErrorKind is a stable reason for mandate-gate denial.
type ErrorKind string

const (
	ErrNoMandate  ErrorKind = "M_OUT_OF_SCOPE"
	ErrRevoked    ErrorKind = "M_REVOKED"
	ErrExpired    ErrorKind = "M_EXPIRED"
	ErrAlreadyUsed ErrorKind = "M_ALREADY_USED"
)

func (e ErrorKind) Error() string { return string(e) }

// Store is the read side of mandate lookup: the set of mandates in force
// for the current run, keyed by ID, plus the per-mandate consumption
// ledger.
type Store struct {
	byID   map[string]Mandate
	Ledger *Ledger
}

func NewStore(mandates []Mandate) *Store {
	byID := make(map[string]Mandate, len(mandates))
	for _, m := range mandates {
		byID[m.ID] = m
	}
	return &Store{byID: byID, Ledger: NewLedger()}
}

// Find returns the first mandate in the store whose scope covers
// toolName, preferring transaction mandates over intent mandates when
// both apply (a transaction mandate is a more specific authorization).
// Find iterates mandate IDs in sorted order for determinism (spec.md §5:
// "iteration over structured data uses sorted orders").
func (s *Store) Find(toolName string) (Mandate, bool) {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sortStrings(ids)

	var best Mandate
	found := false
	for _, id := range ids {
		m := s.byID[id]
		if !m.Scope.Covers(toolName) {
			continue
		}
		if !found || (m.Kind == KindTransaction && best.Kind != KindTransaction) {
			best = m
			found = true
		}
	}
	return best, found
}

// Gate evaluates the mandate requirement for a commit/write-tagged tool
// call, per spec.md §4.11 item 3's five sub-checks in order: locate,
// validity window, revocation, single-use consumption.
func (s *Store) Gate(toolName, toolCallID string, now time.Time) (Mandate, Receipt, error) {
	m, ok := s.Find(toolName)
	if !ok {
		return Mandate{}, Receipt{}, ErrNoMandate
	}
	if m.Revoked {
		return m, Receipt{}, ErrRevoked
	}
	if !m.ValidAt(now) {
		return m, Receipt{}, ErrExpired
	}
	if !m.SingleUse {
		return m, Receipt{UseID: UseID(m.ID, toolCallID), UseCount: 1, FirstUse: true}, nil
	}
	receipt, err := s.Ledger.Consume(m.ID, toolCallID)
	if err != nil {
		return m, Receipt{}, err
	}
	return m, receipt, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
