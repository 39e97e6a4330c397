package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic JSON for values, value lists,
// variable snapshots and whole programs. It is the encoding the store
// persists and the one ProgramHash digests.
//
// Differences from json.Marshal:
//  1. Values are tagged by kind: {"int":1}, {"float":1.5}, {"str":"x"}
//  2. Object keys are sorted bytewise
//  3. No HTML escaping (< > & are NOT escaped)
//  4. Strings are NFC normalized
//  5. NaN and infinities are rejected
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil, Nil:
		buf.WriteString("null")
	case Int:
		buf.WriteString(`{"int":`)
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		buf.WriteByte('}')
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite float is not representable: %v", f)
		}
		buf.WriteString(`{"float":`)
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		buf.WriteByte('}')
	case Str:
		buf.WriteString(`{"str":`)
		if err := marshalCanonicalString(buf, string(val)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case []Value:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]Value:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := marshalCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case *Program:
		return marshalProgram(buf, val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// marshalCanonicalString marshals a string with NFC normalization and
// without HTML escaping.
func marshalCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	// Encoder appends a newline.
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

func marshalProgram(buf *bytes.Buffer, p *Program) error {
	buf.WriteString(`{"root":`)
	writeIDs(buf, p.Root)
	buf.WriteString(`,"rules":[`)
	for i := range p.Rules {
		r := &p.Rules[i]
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"guard":`)
		if err := marshalCompute(buf, r.Guard); err != nil {
			return fmt.Errorf("rule %d guard: %w", i, err)
		}
		buf.WriteString(`,"context":`)
		_ = marshalCanonicalString(buf, r.Action.Context)
		buf.WriteString(`,"verb":`)
		_ = marshalCanonicalString(buf, r.Action.Verb)
		buf.WriteString(`,"params":[`)
		for j, c := range r.Action.Params {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCompute(buf, c); err != nil {
				return fmt.Errorf("rule %d param %d: %w", i, j, err)
			}
		}
		buf.WriteString(`],"child":`)
		writeIDs(buf, r.Action.Child)
		buf.WriteByte('}')
	}
	buf.WriteString("]}")
	return nil
}

// marshalCompute writes ops as strings. Positions are excluded so that
// reformatting the source does not change the hash.
func marshalCompute(buf *bytes.Buffer, c Compute) error {
	buf.WriteByte('[')
	for i, op := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalCanonicalString(buf, op.String()); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeIDs(buf *bytes.Buffer, ids []RuleID) {
	buf.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(id)))
	}
	buf.WriteByte(']')
}

// UnmarshalValue decodes one tagged value written by MarshalCanonical.
func UnmarshalValue(data []byte) (Value, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decodeValue(raw)
}

// UnmarshalValues decodes a value list written by MarshalCanonical.
func UnmarshalValues(data []byte) ([]Value, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	out := make([]Value, len(raws))
	for i, raw := range raws {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// UnmarshalVars decodes a variable snapshot written by MarshalCanonical.
func UnmarshalVars(data []byte) (map[string]Value, error) {
	var raws map[string]json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	out := make(map[string]Value, len(raws))
	for k, raw := range raws {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) (Value, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Nil{}, nil
	}
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("value must have exactly one kind tag, got %d", len(tagged))
	}
	for tag, body := range tagged {
		switch tag {
		case "int":
			var n int64
			if err := json.Unmarshal(body, &n); err != nil {
				return nil, fmt.Errorf("int: %w", err)
			}
			return Int(n), nil
		case "float":
			var f float64
			if err := json.Unmarshal(body, &f); err != nil {
				return nil, fmt.Errorf("float: %w", err)
			}
			return Float(f), nil
		case "str":
			var s string
			if err := json.Unmarshal(body, &s); err != nil {
				return nil, fmt.Errorf("str: %w", err)
			}
			return Str(s), nil
		default:
			return nil, fmt.Errorf("unknown value tag %q", tag)
		}
	}
	panic("unreachable")
}
