package policy

import (
	"fmt"
	"regexp"

	"github.com/google/cel-go/cel"

	"github.com/assayhq/assay/internal/jsonstrict"
)

// DenyToolRule denies an exact or glob tool-name match (spec.md §4.11
// item 1).
type DenyToolRule struct {
	ID      string
	Pattern string
}

func (r DenyToolRule) matches(toolName string) bool {
	return matchGlob(r.Pattern, toolName)
}

// AllowToolRule is one entry of an allow list (spec.md §4.11 item 2): if
// any allow rules are compiled in at all, a tool not matching any of
// them is denied.
type AllowToolRule struct {
	ID      string
	Pattern string
}

func (r AllowToolRule) matches(toolName string) bool {
	return matchGlob(r.Pattern, toolName)
}

// ArgRule is one argument constraint (spec.md §4.11 item 4): a
// JSON-Schema subset for structural validation, an optional set of
// regex deny-patterns keyed by argument field name, and an optional CEL
// boolean predicate for constraints a schema can't express (value
// comparisons across fields, numeric ceilings). The CEL half is a
// direct generalization of mcptrust's internal/policy.Engine
// (cel.NewEnv + Compile + Program + Eval over a map[string]interface{}
// input), retargeted from a scan-report input to a tool call's
// arguments.
type ArgRule struct {
	ID           string
	ToolPattern  string
	Schema       *Schema
	DenyPatterns map[string]*regexp.Regexp
	CELExpr      string

	program cel.Program
}

// Compile precompiles the rule's schema pattern and, if present, its CEL
// expression, so replay of a long trace doesn't recompile per call.
func (r *ArgRule) Compile(env *cel.Env) error {
	if r.Schema != nil {
		if err := r.Schema.Compile(); err != nil {
			return err
		}
	}
	if r.CELExpr == "" {
		return nil
	}
	ast, issues := env.Compile(r.CELExpr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("policy: rule %s: CEL compile error: %w", r.ID, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return fmt.Errorf("policy: rule %s: CEL program error: %w", r.ID, err)
	}
	r.program = prg
	return nil
}

// Evaluate returns a violation message, or "" if call's arguments
// satisfy the rule.
func (r *ArgRule) Evaluate(call ToolCall) string {
	if !matchGlob(r.ToolPattern, call.ToolName) {
		return ""
	}
	if r.Schema != nil {
		if msg := r.Schema.Validate(call.Arguments); msg != "" {
			return msg
		}
	}
	if call.Arguments.Kind == jsonstrict.KindObject {
		for field, re := range r.DenyPatterns {
			val, ok := call.Arguments.Obj.Get(field)
			if !ok || val.Kind != jsonstrict.KindString {
				continue
			}
			if re.MatchString(val.Str) {
				return fmt.Sprintf("argument %q matches deny pattern %q", field, re.String())
			}
		}
	}
	if r.program != nil {
		out, _, err := r.program.Eval(map[string]interface{}{
			"arguments": valueToInterface(call.Arguments),
		})
		if err != nil {
			return fmt.Sprintf("CEL evaluation error: %v", err)
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			return fmt.Sprintf("CEL constraint %q failed", r.CELExpr)
		}
	}
	return ""
}

// RateLimitRule enforces spec.md §4.11 item 6: a per-run counter for
// max_tool_calls_total.
type RateLimitRule struct {
	ID       string
	MaxTotal int
}

func (r RateLimitRule) exceeded(totalCallsAfterThisOne int) bool {
	return r.MaxTotal > 0 && totalCallsAfterThisOne > r.MaxTotal
}

// valueToInterface lowers a jsonstrict.Value to a plain Go value CEL can
// evaluate over, mirroring mcptrust's reportToMap-style flattening from
// internal/policy/engine.go's CEL input construction.
func valueToInterface(v jsonstrict.Value) interface{} {
	switch v.Kind {
	case jsonstrict.KindNull:
		return nil
	case jsonstrict.KindBool:
		return v.Bool
	case jsonstrict.KindNumber:
		if v.Num.IsFloat {
			return v.Num.Float
		}
		return v.Num.Int
	case jsonstrict.KindString:
		return v.Str
	case jsonstrict.KindArray:
		out := make([]interface{}, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = valueToInterface(e)
		}
		return out
	case jsonstrict.KindObject:
		out := make(map[string]interface{}, len(v.Obj.Members))
		for _, m := range v.Obj.Members {
			out[m.Key] = valueToInterface(m.Value)
		}
		return out
	default:
		return nil
	}
}

func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("arguments", cel.DynType),
	)
}
