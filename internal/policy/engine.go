package policy

import (
	"github.com/assayhq/assay/internal/mandate"
	"github.com/assayhq/assay/internal/reason"
)

// Engine evaluates ToolCalls against a CompiledPolicy, in the fixed
// six-step order spec.md §4.11 defines.
type Engine struct {
	Policy *CompiledPolicy
}

func NewEngine(p *CompiledPolicy) *Engine {
	return &Engine{Policy: p}
}

// Decide runs one tool call through the pipeline, recording it into
// ctx's history for subsequent sequence/rate-limit evaluation
// regardless of the outcome — a denied call still happened and still
// counts (spec.md §4.10: "the replay engine never recovers locally from
// a policy violation — it records the deny decision and continues").
//
// In dry-run mode the pipeline still runs to completion; a would-be deny
// is reported as Decision{Allow:true, DryRun:true, ReasonCode:<the code
// that would have denied>} so the caller can log "would_deny" while
// passing the call through (spec.md §4.11, final paragraph).
func (e *Engine) Decide(ctx *EvalContext, call ToolCall) Decision {
	d := e.decide(ctx, call)
	ctx.record(call.ToolName)
	if e.Policy.DryRun && !d.Allow {
		d.DryRun = true
		d.Allow = true
	}
	return d
}

func (e *Engine) decide(ctx *EvalContext, call ToolCall) Decision {
	// Step 1: deny list.
	for _, r := range e.Policy.DenyRules {
		if r.matches(call.ToolName) {
			return Decision{Allow: false, ReasonCode: reason.CodeToolDenied, RuleID: r.ID}
		}
	}

	// Step 2: allow list, if configured.
	if len(e.Policy.AllowRules) > 0 {
		allowed := false
		var matchedID string
		for _, r := range e.Policy.AllowRules {
			if r.matches(call.ToolName) {
				allowed = true
				matchedID = r.ID
				break
			}
		}
		if !allowed {
			return Decision{Allow: false, ReasonCode: reason.CodeToolNotAllowed}
		}
		_ = matchedID
	}

	// Step 3: mandate gate, for tools tagged commit/write. A pass does
	// not short-circuit the remaining steps — it only upgrades the
	// eventual success reason code to P_MANDATE_VALID and attaches the
	// mandate outcome for the replay engine's lifecycle-event emission.
	var mandateOutcome *MandateOutcome
	if e.Policy.requiresMandate(call.ToolName) {
		d, denied := e.mandateGate(ctx, call)
		if denied {
			return d
		}
		mandateOutcome = d.Mandate
	}

	// Step 4: argument constraints.
	for _, r := range e.Policy.ArgRules {
		if msg := r.Evaluate(call); msg != "" {
			_ = msg // captured in the decision's rule id; message logged by caller via diagnostic context
			return Decision{Allow: false, ReasonCode: reason.CodeArgBlocked, RuleID: r.ID}
		}
	}

	// Step 5: sequence rules.
	for _, r := range e.Policy.SequenceRules {
		if msg := r.evaluate(ctx, call); msg != "" {
			_ = msg
			return Decision{Allow: false, ReasonCode: reason.CodeSequenceViolation, RuleID: r.ID}
		}
	}

	// Step 6: rate limits.
	for _, r := range e.Policy.RateLimitRules {
		if r.exceeded(ctx.totalCalls + 1) {
			return Decision{Allow: false, ReasonCode: reason.CodeRateLimited, RuleID: r.ID}
		}
	}

	if mandateOutcome != nil {
		return Decision{Allow: true, ReasonCode: reason.CodeMandateValid, Mandate: mandateOutcome}
	}
	return Decision{Allow: true, ReasonCode: reason.CodeAllowed}
}

// mandateGate implements spec.md §4.11 item 3's sub-pipeline: locate,
// validity window, revocation, single-use consumption. The second return
// value is true only when the gate itself denies the call.
func (e *Engine) mandateGate(ctx *EvalContext, call ToolCall) (Decision, bool) {
	m, receipt, err := ctx.Mandates.Gate(call.ToolName, call.ToolCallID, ctx.Now())
	if err != nil {
		switch err {
		case mandate.ErrRevoked:
			return Decision{Allow: false, ReasonCode: reason.CodeMandateRevoked}, true
		case mandate.ErrExpired:
			return Decision{Allow: false, ReasonCode: reason.CodeMandateExpired}, true
		case mandate.ErrAlreadyUsed:
			return Decision{Allow: false, ReasonCode: reason.CodeMandateUsed}, true
		default:
			return Decision{Allow: false, ReasonCode: reason.CodeMandateOutOfScope}, true
		}
	}
	return Decision{
		Allow:      true,
		ReasonCode: reason.CodeMandateValid,
		Mandate:    &MandateOutcome{MandateID: m.ID, Receipt: receipt},
	}, false
}
