// Package canon implements RFC 8785 JSON Canonicalization Scheme (JCS)
// writing over jsonstrict.Value, and content-addressed digests over the
// resulting bytes.
//
// This is a hardened port of the CanonV2 family in mcptrust's
// internal/locker/canonical.go, adapted to walk jsonstrict.Value instead
// of interface{} so canonicalization can only ever run over a value that
// has already survived strict parsing — a stringified or loosely-parsed
// document never reaches Write.
package canon

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"

	"github.com/assayhq/assay/internal/jsonstrict"
)

// Write appends the JCS-canonical encoding of v to buf.
func Write(buf *bytes.Buffer, v jsonstrict.Value) error {
	switch v.Kind {
	case jsonstrict.KindNull:
		buf.WriteString("null")
	case jsonstrict.KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case jsonstrict.KindNumber:
		s, err := formatNumber(v.Num)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case jsonstrict.KindString:
		writeString(buf, v.Str)
	case jsonstrict.KindArray:
		buf.WriteByte('[')
		for i, elem := range v.Arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := Write(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case jsonstrict.KindObject:
		return writeObject(buf, v.Obj)
	default:
		return fmt.Errorf("canon: unknown value kind %d", v.Kind)
	}
	return nil
}

// Marshal returns the JCS-canonical byte encoding of v.
func Marshal(v jsonstrict.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, o *jsonstrict.Object) error {
	keys := make([]string, len(o.Members))
	byKey := make(map[string]jsonstrict.Value, len(o.Members))
	for i, m := range o.Members {
		keys[i] = m.Key
		byKey[m.Key] = m.Value
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareUTF16(keys[i], keys[j]) < 0
	})
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, key)
		buf.WriteByte(':')
		if err := Write(buf, byKey[key]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// compareUTF16 orders strings by UTF-16 code unit, as RFC 8785 §3.2.3
// requires — not by Go's native byte or rune ordering.
func compareUTF16(a, b string) int {
	aUnits := utf16.Encode([]rune(a))
	bUnits := utf16.Encode([]rune(b))
	n := len(aUnits)
	if len(bUnits) < n {
		n = len(bUnits)
	}
	for i := 0; i < n; i++ {
		if aUnits[i] != bUnits[i] {
			if aUnits[i] < bUnits[i] {
				return -1
			}
			return 1
		}
	}
	return len(aUnits) - len(bUnits)
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// formatNumber renders a jsonstrict.Number per RFC 8785 §3.2.2.3. Strict
// parsing already rejects floats and out-of-range integers, so this path
// only ever sees safe int64 values in practice; the float branch exists
// for values built programmatically (e.g. yamlstrict passthrough) rather
// than parsed from untrusted bytes.
func formatNumber(n jsonstrict.Number) (string, error) {
	if !n.IsFloat {
		return strconv.FormatInt(n.Int, 10), nil
	}
	f := n.Float
	if f != f {
		return "", fmt.Errorf("canon: NaN is not a valid JSON number")
	}
	if f > 1.7976931348623157e+308 || f < -1.7976931348623157e+308 {
		return "", fmt.Errorf("canon: infinite value is not a valid JSON number")
	}
	if f == 0 {
		return "0", nil
	}
	if f == float64(int64(f)) && f >= -9007199254740991 && f <= 9007199254740991 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}
