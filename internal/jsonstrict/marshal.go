package jsonstrict

import "encoding/json"

// MarshalJSON renders v as standard encoding/json bytes, so a Value can
// be embedded as a field of an ordinary tagged struct (event.Envelope's
// Data field, for instance) and flow through encoding/json as-is.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.Bool {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindNumber:
		if v.Num.IsFloat {
			return json.Marshal(v.Num.Float)
		}
		return json.Marshal(v.Num.Int)
	case KindString:
		return json.Marshal(v.Str)
	case KindArray:
		out := make([]json.RawMessage, len(v.Arr))
		for i, e := range v.Arr {
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return json.Marshal(out)
	case KindObject:
		var buf []byte
		buf = append(buf, '{')
		for i, m := range v.Obj.Members {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyJSON, err := json.Marshal(m.Key)
			if err != nil {
				return nil, err
			}
			valJSON, err := m.Value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyJSON...)
			buf = append(buf, ':')
			buf = append(buf, valJSON...)
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes b with the full strict parser, so a Value field
// on an otherwise ordinary encoding/json struct still rejects duplicate
// keys, oversized strings, and the rest of this package's limits — the
// convenience of struct tags does not weaken strictness.
func (v *Value) UnmarshalJSON(b []byte) error {
	parsed, err := Parse(b)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
