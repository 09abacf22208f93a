// Package jsonstrict implements a hardened JSON value model and parser.
//
// Unlike encoding/json, parsing here observes and rejects duplicate
// object keys, enforces nesting/size/string-length limits, and validates
// surrogate pairs — properties a differential parser needs to be safe
// against, and properties a plain json.Unmarshal into interface{} cannot
// see (duplicate keys are silently overwritten by the last value).
package jsonstrict

import "fmt"

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Number is a JSON number restricted to the safe integer range; strict
// mode rejects floats and out-of-range integers at parse time (§4.1).
type Number struct {
	// Int holds the integer value; always valid when Float is false.
	Int int64
	// Float holds the value when the source literal contained a
	// fraction or exponent; strict JSON parsing rejects these, but the
	// type exists so canon.go can still format legacy permissive input
	// (YAML numeric passthrough) the same way json.Number would.
	Float   float64
	IsFloat bool
}

// Member is one key/value pair of an Object, stored in source order.
type Member struct {
	Key   string
	Value Value
}

// Object is an ordered set of members. Order is preserved so duplicate
// keys can be detected during construction and so error paths can report
// the position of the original offending member.
type Object struct {
	Members []Member
}

// Get returns the value for key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	for _, m := range o.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Value is a tagged-union JSON value produced only by strict parsing.
type Value struct {
	Kind   Kind
	Bool   bool
	Num    Number
	Str    string
	Arr    []Value
	Obj    *Object
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value          { return Value{Kind: KindNumber, Num: Number{Int: i}} }
func Array(v []Value) Value      { return Value{Kind: KindArray, Arr: v} }
func ObjectValue(o *Object) Value { return Value{Kind: KindObject, Obj: o} }

// Path renders a JSON-pointer-like location for error reporting, e.g.
// "/a/b/2/c".
type Path []string

func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	s := ""
	for _, seg := range p {
		s += "/" + seg
	}
	return s
}

func (p Path) Child(seg string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

func (p Path) Index(i int) Path {
	return p.Child(fmt.Sprintf("%d", i))
}
