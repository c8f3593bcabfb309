package model

import (
	"encoding/json"
	"sort"
)

// Attrs is an ordered string-keyed map of Value. Iteration order is
// insertion order: the first Set of a new key appends it; a later Set
// of an existing key updates the value in place without moving it.
type Attrs struct {
	keys   []string
	values map[string]Value
}

// NewAttrs returns an empty Attrs.
func NewAttrs() Attrs {
	return Attrs{values: make(map[string]Value)}
}

// Pair is one key/value entry, used by AttrsOf to build an Attrs
// literal with explicit insertion order.
type Pair struct {
	Key   string
	Value Value
}

// AttrsOf builds an Attrs from key/value pairs in the given order.
func AttrsOf(pairs ...Pair) Attrs {
	a := NewAttrs()
	for _, p := range pairs {
		a = a.Set(p.Key, p.Value)
	}
	return a
}

// Len reports the number of entries.
func (a Attrs) Len() int { return len(a.keys) }

// Keys returns the keys in insertion order. The returned slice must
// not be mutated by the caller.
func (a Attrs) Keys() []string { return a.keys }

// Get returns the value for key and whether it is present.
func (a Attrs) Get(key string) (Value, bool) {
	if a.values == nil {
		return Value{}, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Set returns a new Attrs with key set to value, preserving Attrs'
// immutability: the receiver is never mutated.
func (a Attrs) Set(key string, value Value) Attrs {
	next := a.Clone()
	if next.values == nil {
		next.values = make(map[string]Value)
	}
	if _, exists := next.values[key]; !exists {
		next.keys = append(next.keys, key)
	}
	next.values[key] = value
	return next
}

// Delete returns a new Attrs with key removed, if present.
func (a Attrs) Delete(key string) Attrs {
	if _, ok := a.Get(key); !ok {
		return a
	}
	next := NewAttrs()
	for _, k := range a.keys {
		if k == key {
			continue
		}
		v, _ := a.Get(k)
		next = next.Set(k, v)
	}
	return next
}

// Clone returns a deep-enough copy: the key slice and map header are
// copied so that Set on the result never mutates a.
func (a Attrs) Clone() Attrs {
	next := Attrs{
		keys:   make([]string, len(a.keys)),
		values: make(map[string]Value, len(a.values)),
	}
	copy(next.keys, a.keys)
	for k, v := range a.values {
		next.values[k] = v
	}
	return next
}

// Merge returns a new Attrs formed by applying partial on top of a:
// existing keys in a keep their position, keys only in partial are
// appended, and values in partial win. This is the semantics of
// Draft.UpdateAttr (spec.md §4.4).
func (a Attrs) Merge(partial Attrs) Attrs {
	next := a.Clone()
	for _, k := range partial.keys {
		v, _ := partial.Get(k)
		next = next.Set(k, v)
	}
	return next
}

// MarshalJSON implements json.Marshaler as a plain key/value object;
// RFC 8785 canonicalization (see pkg/codec) is what gives a
// serialized Attrs a deterministic byte representation, not field
// order here.
func (a Attrs) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, a.Len())
	for _, k := range a.keys {
		out[k], _ = a.Get(k)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. JSON object key order
// isn't preserved by encoding/json, so the decoded Attrs orders its
// keys lexically; a caller that depends on a specific declaration
// order should build the Attrs directly instead of round-tripping it
// through JSON (the same caveat schema.FromJSON documents).
func (a *Attrs) UnmarshalJSON(data []byte) error {
	var raw map[string]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	next := NewAttrs()
	for _, k := range keys {
		next = next.Set(k, raw[k])
	}
	*a = next
	return nil
}

// Equal reports structural, order-independent equality: the same set
// of keys, each mapping to an Equal Value.
func (a Attrs) Equal(other Attrs) bool {
	if a.Len() != other.Len() {
		return false
	}
	for _, k := range a.keys {
		v, ok := a.Get(k)
		if !ok {
			return false
		}
		ov, ok := other.Get(k)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
