// Package model implements the immutable document model: attribute
// values, marks, nodes, and the node pool. See spec.md §3.
package model

import (
	"encoding/json"
	"fmt"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a JSON-compatible tagged union: null, bool, signed integer,
// floating point, string, an ordered array of Value, or a string-keyed
// ordered map of Value. It is the AttributeValue of spec.md §3.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	arr    []Value
	object Attrs
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a signed integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating point number.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps an ordered list of Value. The slice is copied.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Map wraps an ordered string-keyed map of Value.
func Map(attrs Attrs) Value {
	return Value{kind: KindMap, object: attrs.Clone()}
}

// Kind reports which variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the bool payload and whether v holds a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the int payload and whether v holds an int.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload and whether v holds a float.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string payload and whether v holds a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsArray returns the array payload and whether v holds an array.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsMap returns the map payload and whether v holds a map.
func (v Value) AsMap() (Attrs, bool) { return v.object, v.kind == KindMap }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Equal reports structural equality: two Values are equal iff they
// hold the same Kind and equal payloads. Map equality is order
// independent (key/value pairs must match, not their iteration order);
// array equality is order dependent.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.object.Equal(other.object)
	default:
		return false
	}
}

// toAny converts v to a plain interface{} tree suitable for
// json.Marshal, as the intermediate step for canonical (JCS) encoding.
func (v Value) toAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.toAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.object.Len())
		for _, k := range v.object.Keys() {
			val, _ := v.object.Get(k)
			out[k] = val.toAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toAny())
}

// UnmarshalJSON implements json.Unmarshaler by decoding into `any`
// and delegating to ValueFromAny, so a Value round-trips through JSON
// the same way schema.FromJSON's attribute defaults do.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromAny converts a decoded JSON value (as produced by
// json.Unmarshal into `any`, or by a caller building one by hand) into
// a Value. Unknown numeric types are rejected since JSON numbers
// decode as float64 by default.
func ValueFromAny(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		if x == float64(int64(x)) {
			// A whole-number float64 stays Float: encoding/json decodes
			// every JSON number as float64, so the original Kind cannot
			// be recovered here.
			return Float(x), nil
		}
		return Float(x), nil
	case string:
		return String(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := ValueFromAny(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		attrs := NewAttrs()
		for _, k := range sortedKeys(x) {
			v, err := ValueFromAny(x[k])
			if err != nil {
				return Value{}, err
			}
			attrs = attrs.Set(k, v)
		}
		return Map(attrs), nil
	default:
		return Value{}, fmt.Errorf("model: unsupported attribute value type %T", in)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion order is not recoverable from a decoded map[string]any;
	// fall back to a stable deterministic order.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
