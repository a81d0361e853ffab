package tables

import (
	"encoding/json"
	"strconv"
)

// Kind identifies the concrete type held by a Value.
type Kind int32

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

// Value is a tagged variant for the heterogeneous cell values found in
// semi-structured input. Exactly one payload field is meaningful,
// selected by Kind.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Float wraps a double.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// String wraps a string.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Render returns the value as a string, the way it would appear in a
// textual export.
func (v Value) Render() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

// MarshalJSON renders the variant as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindString:
		return json.Marshal(v.Str)
	default:
		return []byte("null"), nil
	}
}
