package policy

import (
	"fmt"
	"regexp"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// Pack is the typed shape of one compliance/quality/security pack YAML
// document (spec.md §6.2): name, version, kind, and an ordered list of
// rules, each naming a check type and its type-specific fields.
type Pack struct {
	Name                string     `yaml:"name"`
	Version             string     `yaml:"version"`
	Kind                string     `yaml:"kind"`
	EvidenceSchemaVer   string     `yaml:"evidence_schema_version,omitempty"`
	Rules               []PackRule `yaml:"rules"`
}

// PackRule is one rule entry: an id, a check, and a severity. Severity
// is carried through for diagnostics but does not itself change
// allow/deny semantics (a pack author who wants "info" rules to never
// deny should not put them in a pack consumed for enforcement).
type PackRule struct {
	ID       string    `yaml:"id"`
	Check    PackCheck `yaml:"check"`
	Severity string    `yaml:"severity"`
}

// PackCheck is the tagged-union body of one rule, discriminated by
// Type. Only the fields relevant to Type are populated; the rest are
// zero.
type PackCheck struct {
	Type string `yaml:"type"`

	// deny_tool, allow_tool
	Pattern string `yaml:"pattern,omitempty"`

	// mandate_required
	Tools []string `yaml:"tools,omitempty"`

	// arg_constraint
	ToolPattern  string            `yaml:"tool_pattern,omitempty"`
	Schema       *Schema           `yaml:"schema,omitempty"`
	DenyPatterns map[string]string `yaml:"deny_patterns,omitempty"`
	CEL          string            `yaml:"cel,omitempty"`

	// sequence_before, sequence_require, sequence_blocklist,
	// sequence_max_calls, sequence_after, sequence_never_after
	A string `yaml:"a,omitempty"`
	B string `yaml:"b,omitempty"`
	N int    `yaml:"n,omitempty"`

	// rate_limit_total
	MaxTotal int `yaml:"max_total,omitempty"`
}

// SupportedEvidenceSchemaVersion is the one evidence_schema_version a v1
// pack may declare. Open Question #3 (spec.md §9) is frozen as
// exact-match, not semver-range, so any other value is rejected outright
// rather than treated as compatible.
const SupportedEvidenceSchemaVersion = "1.0"

// ParsePack unmarshals one pack YAML document into its typed shape.
// Digest verification and duplicate-key rejection happen upstream, at
// resolution time, via internal/canon.FromYAML / internal/registry — by
// the time a pack reaches ParsePack its bytes are already known-good,
// so this step only needs to recover the typed fields yaml.v3 gives for
// free.
func ParsePack(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("policy: parsing pack: %w", err)
	}
	if p.Name == "" || p.Version == "" {
		return nil, fmt.Errorf("policy: pack is missing required name/version")
	}
	if p.EvidenceSchemaVer != "" && p.EvidenceSchemaVer != SupportedEvidenceSchemaVersion {
		return nil, fmt.Errorf("policy: pack %s declares evidence_schema_version %q, only %q is supported",
			p.Name, p.EvidenceSchemaVer, SupportedEvidenceSchemaVersion)
	}
	return &p, nil
}

// Compile merges one or more packs (already resolved, verified, and
// parsed) plus optional user overrides into one evaluation-ready
// CompiledPolicy. Packs are applied in the order given; later packs'
// rules are appended after earlier ones, so an earlier pack's deny
// rule is checked first (spec.md §4.11's "first deny wins" composition,
// Design Notes §9).
func Compile(packs []*Pack, dryRun bool) (*CompiledPolicy, error) {
	cp := &CompiledPolicy{DryRun: dryRun}
	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("policy: building CEL environment: %w", err)
	}

	for _, pack := range packs {
		for _, rule := range pack.Rules {
			if err := compileRule(cp, env, rule); err != nil {
				return nil, fmt.Errorf("policy: pack %s@%s rule %s: %w", pack.Name, pack.Version, rule.ID, err)
			}
		}
	}
	return cp, nil
}

func compileRule(cp *CompiledPolicy, env *cel.Env, rule PackRule) error {
	check := rule.Check
	switch check.Type {
	case "deny_tool":
		if check.Pattern == "" {
			return fmt.Errorf("deny_tool requires a pattern")
		}
		cp.DenyRules = append(cp.DenyRules, DenyToolRule{ID: rule.ID, Pattern: check.Pattern})

	case "allow_tool":
		if check.Pattern == "" {
			return fmt.Errorf("allow_tool requires a pattern")
		}
		cp.AllowRules = append(cp.AllowRules, AllowToolRule{ID: rule.ID, Pattern: check.Pattern})

	case "mandate_required":
		if len(check.Tools) == 0 {
			return fmt.Errorf("mandate_required requires at least one tool pattern")
		}
		cp.MandateTools = append(cp.MandateTools, check.Tools...)

	case "arg_constraint":
		if check.ToolPattern == "" {
			return fmt.Errorf("arg_constraint requires a tool_pattern")
		}
		ar := &ArgRule{ID: rule.ID, ToolPattern: check.ToolPattern, Schema: check.Schema, CELExpr: check.CEL}
		if len(check.DenyPatterns) > 0 {
			ar.DenyPatterns = make(map[string]*regexp.Regexp, len(check.DenyPatterns))
			for field, pattern := range check.DenyPatterns {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return fmt.Errorf("compiling deny_patterns[%s]: %w", field, err)
				}
				ar.DenyPatterns[field] = re
			}
		}
		if err := ar.Compile(env); err != nil {
			return err
		}
		cp.ArgRules = append(cp.ArgRules, *ar)

	case "sequence_before":
		cp.SequenceRules = append(cp.SequenceRules, SequenceRule{ID: rule.ID, Op: OpBefore, A: check.A, B: check.B})
	case "sequence_require":
		cp.SequenceRules = append(cp.SequenceRules, SequenceRule{ID: rule.ID, Op: OpRequire, A: check.A})
	case "sequence_blocklist":
		cp.SequenceRules = append(cp.SequenceRules, SequenceRule{ID: rule.ID, Op: OpBlocklist, A: check.A})
	case "sequence_max_calls":
		cp.SequenceRules = append(cp.SequenceRules, SequenceRule{ID: rule.ID, Op: OpMaxCalls, A: check.A, N: check.N})
	case "sequence_after":
		cp.SequenceRules = append(cp.SequenceRules, SequenceRule{ID: rule.ID, Op: OpAfter, A: check.A, B: check.B})
	case "sequence_never_after":
		cp.SequenceRules = append(cp.SequenceRules, SequenceRule{ID: rule.ID, Op: OpNeverAfter, A: check.A, B: check.B})

	case "rate_limit_total":
		if check.MaxTotal <= 0 {
			return fmt.Errorf("rate_limit_total requires a positive max_total")
		}
		cp.RateLimitRules = append(cp.RateLimitRules, RateLimitRule{ID: rule.ID, MaxTotal: check.MaxTotal})

	default:
		return fmt.Errorf("unrecognized check type %q", check.Type)
	}
	return nil
}
