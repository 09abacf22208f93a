package policy

import (
	"fmt"
	"regexp"

	"github.com/assayhq/assay/internal/jsonstrict"
)

// Schema is a small, strict subset of JSON Schema (draft 2020-12)
// sufficient for argument validation (spec.md §4.11 item 4): type,
// required, properties, enum, and string pattern. This is a hand-rolled
// subset in the same spirit as internal/canon's from-scratch JCS writer
// (Design Notes §9: "the rule set is small and the correctness bar is
// high") — no general-purpose JSON-Schema validator appears anywhere in
// the retrieval pack, so one is not fabricated as a dependency; the
// subset actually needed here is small enough to hand-write and test
// exhaustively.
type Schema struct {
	Type       string             `yaml:"type,omitempty"`
	Required   []string           `yaml:"required,omitempty"`
	Properties map[string]*Schema `yaml:"properties,omitempty"`
	Enum       []string           `yaml:"enum,omitempty"`
	Pattern    string             `yaml:"pattern,omitempty"`

	compiledPattern *regexp.Regexp
}

// Compile precompiles the schema's regex pattern, if any, so repeated
// Validate calls across many tool calls in a replay run don't
// re-compile it each time.
func (s *Schema) Compile() error {
	if s == nil {
		return nil
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("policy: invalid schema pattern %q: %w", s.Pattern, err)
		}
		s.compiledPattern = re
	}
	for _, p := range s.Properties {
		if err := p.Compile(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks v against the schema, returning the first violation
// found as a human-readable message, or "" if v conforms.
func (s *Schema) Validate(v jsonstrict.Value) string {
	if s == nil {
		return ""
	}
	if s.Type != "" {
		if msg := checkType(s.Type, v); msg != "" {
			return msg
		}
	}
	if v.Kind == jsonstrict.KindString && len(s.Enum) > 0 {
		if !contains(s.Enum, v.Str) {
			return fmt.Sprintf("value %q is not one of %v", v.Str, s.Enum)
		}
	}
	if v.Kind == jsonstrict.KindString && s.compiledPattern != nil {
		if !s.compiledPattern.MatchString(v.Str) {
			return fmt.Sprintf("value %q does not match pattern %q", v.Str, s.Pattern)
		}
	}
	if v.Kind == jsonstrict.KindObject {
		for _, name := range s.Required {
			if _, ok := v.Obj.Get(name); !ok {
				return fmt.Sprintf("missing required property %q", name)
			}
		}
		for name, propSchema := range s.Properties {
			val, ok := v.Obj.Get(name)
			if !ok {
				continue
			}
			if msg := propSchema.Validate(val); msg != "" {
				return fmt.Sprintf("property %q: %s", name, msg)
			}
		}
	}
	return ""
}

func checkType(want string, v jsonstrict.Value) string {
	var ok bool
	switch want {
	case "string":
		ok = v.Kind == jsonstrict.KindString
	case "number", "integer":
		ok = v.Kind == jsonstrict.KindNumber
	case "boolean":
		ok = v.Kind == jsonstrict.KindBool
	case "object":
		ok = v.Kind == jsonstrict.KindObject
	case "array":
		ok = v.Kind == jsonstrict.KindArray
	case "null":
		ok = v.Kind == jsonstrict.KindNull
	default:
		return fmt.Sprintf("unknown schema type %q", want)
	}
	if !ok {
		return fmt.Sprintf("expected type %q", want)
	}
	return ""
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
