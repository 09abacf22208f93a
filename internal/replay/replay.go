// Package replay implements the Replay Engine (spec.md §4.10): it
// consumes a compiled policy and a trace of tool calls, invokes the
// Policy Decision Core (internal/policy) once per call, and emits the
// resulting decision and mandate-lifecycle events as a run ready for
// bundling (internal/bundle).
//
// Grounded on mcptrust's internal/runner package (the component that
// drives a fixed sequence of steps and collects their outcomes into one
// report), generalized here from "run a scanner over a repo" to "run a
// trace through the policy pipeline" — same shape, new domain.
package replay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/assayhq/assay/internal/event"
	"github.com/assayhq/assay/internal/jsonstrict"
	"github.com/assayhq/assay/internal/mandate"
	"github.com/assayhq/assay/internal/policy"
	"github.com/assayhq/assay/internal/reason"
)

// Producer identifies this implementation in every event it emits
// (spec.md §4.4's assayproducer/assayproducerversion attributes).
const Producer = "assay-replay"

// Trace is the input to one replay run: an ordered stream of observed
// tool calls. The engine never reads a clock or a random source — every
// timestamp comes from here (spec.md §4.10 determinism guarantees).
type Trace struct {
	RunID string
	Calls []policy.ToolCall
}

// Run is the complete, ordered output of one replay: every event
// produced, in emission order, plus the per-call decisions and the
// overall exit code spec.md §6 defines.
type Run struct {
	RunID     string
	Events    []event.Envelope
	Decisions []policy.Decision
	ExitCode  reason.ExitCode
}

// Engine drives one trace through a compiled policy.
type Engine struct {
	Policy          *policy.CompiledPolicy
	Mandates        *mandate.Store
	ProducerVersion string
}

// NewEngine builds a replay engine bound to a compiled policy and the
// mandate store covering this run. mandates may be nil if the policy
// has no mandate-gated tools.
func NewEngine(p *policy.CompiledPolicy, mandates *mandate.Store, producerVersion string) *Engine {
	if mandates == nil {
		mandates = mandate.NewStore(nil)
	}
	return &Engine{Policy: p, Mandates: mandates, ProducerVersion: producerVersion}
}

// Replay runs trace through the policy pipeline in order, assigning a
// monotonic seq to every emitted event (spec.md §4.10 item 1), and
// returns the completed Run. It never returns a partial Run: a
// structural error (an unconstructable event envelope) aborts the whole
// replay, since a gap in the decision log would make the resulting
// bundle misleading rather than merely incomplete.
func (e *Engine) Replay(trace Trace) (*Run, error) {
	policyEngine := policy.NewEngine(e.Policy)

	// currentTime is read by evalCtx.Now; it advances to each call's own
	// trace timestamp just before that call is decided, so the mandate
	// gate's validity-window check uses the trace's clock, never the
	// wall clock (spec.md §4.10: "No clock reads; timestamps come from
	// the trace").
	var currentTime time.Time
	evalCtx := policy.NewEvalContext(e.Mandates, func() time.Time { return currentTime })

	run := &Run{RunID: trace.RunID}
	var seq uint64
	usedMandates := make(map[string]bool) // use_id -> already emitted assay.mandate.used.v1

	for _, call := range trace.Calls {
		currentTime = call.Timestamp

		decision := policyEngine.Decide(evalCtx, call)
		run.Decisions = append(run.Decisions, decision)

		decisionEnv, err := e.emitDecision(trace.RunID, &seq, call, decision)
		if err != nil {
			return nil, err
		}
		run.Events = append(run.Events, decisionEnv)

		if decision.Mandate != nil && !usedMandates[decision.Mandate.Receipt.UseID] {
			usedMandates[decision.Mandate.Receipt.UseID] = true
			usedEnv, err := e.emitMandateUsed(trace.RunID, &seq, call, decision.Mandate)
			if err != nil {
				return nil, err
			}
			run.Events = append(run.Events, usedEnv)
		}
	}

	if missing := policy.RequiredSatisfied(e.Policy.SequenceRules, evalCtx.History()); len(missing) > 0 {
		run.ExitCode = reason.ExitPolicyFailure
		return run, nil
	}

	run.ExitCode = exitCodeFor(run.Decisions)
	return run, nil
}

func (e *Engine) emitDecision(runID string, seq *uint64, call policy.ToolCall, d policy.Decision) (event.Envelope, error) {
	outcome := "deny"
	if d.Allow {
		outcome = "allow"
	}
	payload := event.ToolDecisionPayload{
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
		Arguments:  call.Arguments,
		Decision:   outcome,
		ReasonCode: string(d.ReasonCode),
		RuleID:     d.RuleID,
	}
	if err := payload.Validate(); err != nil {
		return event.Envelope{}, fmt.Errorf("replay: building decision event for %s: %w", call.ToolCallID, err)
	}
	return e.emit(runID, seq, call.Timestamp, event.TypeToolDecision, payload)
}

func (e *Engine) emitMandateUsed(runID string, seq *uint64, call policy.ToolCall, m *policy.MandateOutcome) (event.Envelope, error) {
	payload := event.MandateUsedPayload{
		MandateID:  m.MandateID,
		ToolCallID: call.ToolCallID,
		UseID:      m.Receipt.UseID,
		UseCount:   m.Receipt.UseCount,
	}
	if err := payload.Validate(); err != nil {
		return event.Envelope{}, fmt.Errorf("replay: building mandate-used event for %s: %w", call.ToolCallID, err)
	}
	return e.emit(runID, seq, call.Timestamp, event.TypeMandateUsedV1, payload)
}

func (e *Engine) emit(runID string, seq *uint64, ts time.Time, typ event.Type, data interface{}) (event.Envelope, error) {
	v, err := toJSONValue(data)
	if err != nil {
		return event.Envelope{}, err
	}
	env, err := event.New(event.Params{
		Type:            string(typ),
		Source:          "assay://replay",
		ID:              fmt.Sprintf("%s-%d", runID, *seq),
		Time:            ts,
		RunID:           runID,
		Seq:             *seq,
		Producer:        Producer,
		ProducerVersion: e.ProducerVersion,
		DataContentType: "application/json",
		Data:            v,
	})
	if err != nil {
		return event.Envelope{}, err
	}
	*seq++
	return env, nil
}

// exitCodeFor maps a run's decisions to the process exit code table
// (spec.md §6): any deny makes the whole run a policy failure.
func exitCodeFor(decisions []policy.Decision) reason.ExitCode {
	for _, d := range decisions {
		if !d.Allow {
			return reason.ExitPolicyFailure
		}
	}
	return reason.ExitSuccess
}

// toJSONValue renders an event payload (an ordinary tagged struct) into
// a jsonstrict.Value by round-tripping it through encoding/json and then
// the strict parser, so every event's Data field carries the same
// hardened value model bundle.Writer and canon.Digest expect — there is
// no separate reflection-based struct-to-Value path to keep in sync with
// jsonstrict's parser.
func toJSONValue(v interface{}) (jsonstrict.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return jsonstrict.Value{}, fmt.Errorf("replay: marshaling event payload: %w", err)
	}
	parsed, err := jsonstrict.Parse(b)
	if err != nil {
		return jsonstrict.Value{}, fmt.Errorf("replay: strict-parsing event payload: %w", err)
	}
	return parsed, nil
}
