package policy

import "fmt"

// SequenceOp identifies one of spec.md §4.11 item 5's DSL operators:
// before(a,b), require(t), blocklist(t), max_calls(t,n), after(t1,t2),
// never_after(t1,t2).
type SequenceOp string

const (
	OpBefore     SequenceOp = "before"
	OpRequire    SequenceOp = "require"
	OpBlocklist  SequenceOp = "blocklist"
	OpMaxCalls   SequenceOp = "max_calls"
	OpAfter      SequenceOp = "after"
	OpNeverAfter SequenceOp = "never_after"
)

// SequenceRule is one compiled sequence-DSL statement. Its small
// interpreter is hand-rolled rather than built on CEL, because
// sequencing needs per-run call-history state rather than a pure
// per-call predicate; the shape — an explicit compile step producing a
// struct with an Evaluate(state) method — mirrors mcptrust's
// proxy.CompileTemplateMatcher (compile a pattern once, evaluate it
// against many inputs).
type SequenceRule struct {
	ID   string
	Op   SequenceOp
	A    string // tool name, or tool-name for single-arg ops
	B    string // second tool name for before/after/never_after
	N    int    // max_calls count
}

// evaluate checks the rule against ctx's history as of just before call
// is appended (call.ToolName is not yet in ctx.history when this runs).
// Returns a violation message, or "" if the rule is satisfied.
func (r SequenceRule) evaluate(ctx *EvalContext, call ToolCall) string {
	switch r.Op {
	case OpBefore:
		// before(A,B): if B is about to be called, A must already have
		// occurred earlier in history.
		if call.ToolName != r.B {
			return ""
		}
		if !containsName(ctx.history, r.A) {
			return fmt.Sprintf("%s must be called before %s", r.A, r.B)
		}
		return ""

	case OpRequire:
		// require(T): every call of T's tool is itself fine; require is
		// checked as a run-level postcondition by the caller, not
		// per-call (see RequiredSatisfied), so there is nothing to
		// reject at call time.
		return ""

	case OpBlocklist:
		if call.ToolName == r.A {
			return fmt.Sprintf("%s is blocklisted", r.A)
		}
		return ""

	case OpMaxCalls:
		if call.ToolName != r.A {
			return ""
		}
		count := countName(ctx.history, r.A) + 1 // +1 for this call
		if r.N > 0 && count > r.N {
			return fmt.Sprintf("%s exceeds max_calls(%d)", r.A, r.N)
		}
		return ""

	case OpAfter:
		// after(A,B): A may only be called once B has already occurred.
		if call.ToolName != r.A {
			return ""
		}
		if !containsName(ctx.history, r.B) {
			return fmt.Sprintf("%s may only be called after %s", r.A, r.B)
		}
		return ""

	case OpNeverAfter:
		// never_after(A,B): once B has occurred, A must never be called.
		if call.ToolName != r.A {
			return ""
		}
		if containsName(ctx.history, r.B) {
			return fmt.Sprintf("%s must never be called after %s", r.A, r.B)
		}
		return ""

	default:
		return fmt.Sprintf("unrecognized sequence operator %q", r.Op)
	}
}

// RequiredSatisfied checks the run-level require(T) postconditions: each
// required tool name must appear somewhere in ctx.history by the end of
// the run. Callers invoke this once after replay completes, not per
// call — require is the one operator with no meaningful per-call
// rejection point.
func RequiredSatisfied(rules []SequenceRule, history []string) []string {
	var missing []string
	for _, r := range rules {
		if r.Op != OpRequire {
			continue
		}
		if !containsName(history, r.A) {
			missing = append(missing, r.A)
		}
	}
	return missing
}

func containsName(history []string, name string) bool {
	for _, h := range history {
		if h == name {
			return true
		}
	}
	return false
}

func countName(history []string, name string) int {
	n := 0
	for _, h := range history {
		if h == name {
			n++
		}
	}
	return n
}
