// Package policy implements the Policy Decision Core (spec.md §4.11): a
// fixed six-step pipeline — deny list, allow list, mandate gate, argument
// constraints, sequence rules, rate limits — evaluated per tool call to
// produce an allow/deny Decision with a stable reason code.
//
// Rule kinds are modeled as a tagged sum with a uniform
// Evaluate(ctx, call) contract (Design Notes §9), generalizing mcptrust's
// internal/policy.Engine (a single CEL-rule-list evaluator over a scan
// report) into several distinct rule variants driven by the fixed
// pipeline order instead of one undifferentiated rule list.
package policy

import (
	"time"

	"github.com/assayhq/assay/internal/jsonstrict"
	"github.com/assayhq/assay/internal/mandate"
	"github.com/assayhq/assay/internal/reason"
)

// ToolCall is one observed tool invocation from a trace (spec.md Data
// Model "Trace event").
type ToolCall struct {
	ToolCallID   string
	ToolName     string
	Arguments    jsonstrict.Value
	Timestamp    time.Time
	MandateRef   string
	ParentCallID string
}

// Decision is the outcome of evaluating a ToolCall against a
// CompiledPolicy (spec.md Data Model "Decision").
type Decision struct {
	Allow      bool
	ReasonCode reason.Code
	RuleID     string
	DryRun     bool // true if this decision was a would-deny in dry-run mode
	Mandate    *MandateOutcome
}

// MandateOutcome carries the mandate-gate side effects of a Decision so
// the replay engine can emit the corresponding lifecycle events without
// re-deriving them.
type MandateOutcome struct {
	MandateID string
	Receipt   mandate.Receipt
}

// EvalContext is the per-run, mutable state the pipeline consults and
// updates as it processes calls in order: sequence-rule history and the
// total-call counter for rate limiting. It is not safe for concurrent
// use — replay is single-threaded per run (spec.md §4.10).
type EvalContext struct {
	Now        func() time.Time
	Mandates   *mandate.Store
	history    []string // tool names, in call order
	totalCalls int
}

// NewEvalContext builds a fresh per-run evaluation context.
func NewEvalContext(mandates *mandate.Store, now func() time.Time) *EvalContext {
	if now == nil {
		now = time.Now
	}
	if mandates == nil {
		mandates = mandate.NewStore(nil)
	}
	return &EvalContext{Now: now, Mandates: mandates}
}

func (c *EvalContext) record(toolName string) {
	c.history = append(c.history, toolName)
	c.totalCalls++
}

// History returns a copy of the tool-name call history recorded so far,
// for a run-level postcondition check (e.g. SequenceRule require()) once
// replay completes.
func (c *EvalContext) History() []string {
	return append([]string(nil), c.history...)
}

// CompiledPolicy is the result of compiling one or more (signed) pack
// YAML documents plus user config into an evaluation-ready pipeline.
type CompiledPolicy struct {
	DenyRules      []DenyToolRule
	AllowRules     []AllowToolRule
	MandateTools   []string // tool-name globs requiring a mandate gate
	ArgRules       []ArgRule
	SequenceRules  []SequenceRule
	RateLimitRules []RateLimitRule
	DryRun         bool
}

// requiresMandate reports whether toolName is tagged commit/write and
// must pass the mandate gate (spec.md §4.11 item 3).
func (p *CompiledPolicy) requiresMandate(toolName string) bool {
	for _, pattern := range p.MandateTools {
		if matchGlob(pattern, toolName) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, name string) bool {
	if pattern == name {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}
	return false
}
