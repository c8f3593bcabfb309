package model

import "encoding/json"

// Mark is a typed inline annotation attached to a node. Marks compare
// by type+attrs equality (spec.md §3).
type Mark struct {
	Type  string `json:"type"`
	Attrs Attrs  `json:"attrs"`
}

// NewMark constructs a Mark.
func NewMark(markType string, attrs Attrs) Mark {
	return Mark{Type: markType, Attrs: attrs}
}

// Equal reports whether two marks have the same type and structurally
// equal attrs.
func (m Mark) Equal(other Mark) bool {
	return m.Type == other.Type && m.Attrs.Equal(other.Attrs)
}

// MarkSet is an ordered, duplicate-free sequence of Marks. Insertion
// order is preserved (spec.md §3: "Mark sequence preserves insertion
// order; duplicates ... are forbidden").
type MarkSet struct {
	marks []Mark
}

// NewMarkSet builds a MarkSet from marks, in order, rejecting an input
// slice that would itself contain a duplicate.
func NewMarkSet(marks ...Mark) (MarkSet, bool) {
	ms := MarkSet{}
	for _, m := range marks {
		var added bool
		ms, added = ms.add(m)
		if !added {
			return MarkSet{}, false
		}
	}
	return ms, true
}

func (ms MarkSet) add(m Mark) (MarkSet, bool) {
	for _, existing := range ms.marks {
		if existing.Equal(m) {
			return ms, false
		}
	}
	next := make([]Mark, len(ms.marks), len(ms.marks)+1)
	copy(next, ms.marks)
	next = append(next, m)
	return MarkSet{marks: next}, true
}

// Add returns a new MarkSet with m appended, or the receiver unchanged
// plus ok=false if m is already present.
func (ms MarkSet) Add(m Mark) (MarkSet, bool) {
	return ms.add(m)
}

// Remove returns a new MarkSet with the first mark structurally equal
// to m removed, or the receiver unchanged plus ok=false if absent.
func (ms MarkSet) Remove(m Mark) (MarkSet, bool) {
	for i, existing := range ms.marks {
		if existing.Equal(m) {
			next := make([]Mark, 0, len(ms.marks)-1)
			next = append(next, ms.marks[:i]...)
			next = append(next, ms.marks[i+1:]...)
			return MarkSet{marks: next}, true
		}
	}
	return ms, false
}

// Has reports whether a mark structurally equal to m is present.
func (ms MarkSet) Has(m Mark) bool {
	for _, existing := range ms.marks {
		if existing.Equal(m) {
			return true
		}
	}
	return false
}

// Slice returns the marks in insertion order. Callers must not mutate
// the returned slice.
func (ms MarkSet) Slice() []Mark { return ms.marks }

// Len reports the number of marks.
func (ms MarkSet) Len() int { return len(ms.marks) }

// Equal reports order-dependent equality of two mark sequences.
func (ms MarkSet) Equal(other MarkSet) bool {
	if len(ms.marks) != len(other.marks) {
		return false
	}
	for i := range ms.marks {
		if !ms.marks[i].Equal(other.marks[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the mark sequence as a plain array, preserving
// order (spec.md §3: "Mark sequence preserves insertion order").
func (ms MarkSet) MarshalJSON() ([]byte, error) {
	if ms.marks == nil {
		return json.Marshal([]Mark{})
	}
	return json.Marshal(ms.marks)
}

// UnmarshalJSON decodes a plain array of marks back into a MarkSet,
// rejecting a duplicate the same way NewMarkSet does.
func (ms *MarkSet) UnmarshalJSON(data []byte) error {
	var marks []Mark
	if err := json.Unmarshal(data, &marks); err != nil {
		return err
	}
	next, ok := NewMarkSet(marks...)
	if !ok {
		return errDuplicateMark
	}
	*ms = next
	return nil
}

var errDuplicateMark = jsonError("model: duplicate mark in serialized mark set")

type jsonError string

func (e jsonError) Error() string { return string(e) }
