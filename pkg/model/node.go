package model

import "github.com/moduforge-go/core/pkg/ids"

// Node is the document tree's single element type: an id, a schema
// type, attributes, an ordered sequence of child ids, and an ordered
// sequence of marks (spec.md §3).
type Node struct {
	ID      ids.NodeId   `json:"id"`
	Type    string       `json:"type"`
	Attrs   Attrs        `json:"attrs"`
	Content []ids.NodeId `json:"content"`
	Marks   MarkSet      `json:"marks"`
}

// New constructs a Node with no content and no marks.
func New(id ids.NodeId, nodeType string, attrs Attrs) Node {
	return Node{ID: id, Type: nodeType, Attrs: attrs, Marks: MarkSet{}}
}

// WithContent returns a copy of n with Content replaced.
func (n Node) WithContent(content []ids.NodeId) Node {
	cp := make([]ids.NodeId, len(content))
	copy(cp, content)
	n.Content = cp
	return n
}

// WithAttrs returns a copy of n with Attrs replaced.
func (n Node) WithAttrs(attrs Attrs) Node {
	n.Attrs = attrs
	return n
}

// WithMarks returns a copy of n with Marks replaced.
func (n Node) WithMarks(marks MarkSet) Node {
	n.Marks = marks
	return n
}

// ChildIndex returns the index of childID in n.Content, or -1.
func (n Node) ChildIndex(childID ids.NodeId) int {
	for i, c := range n.Content {
		if c == childID {
			return i
		}
	}
	return -1
}

// Equal reports structural equality: same id, type, attrs, content
// sequence, and mark sequence.
func (n Node) Equal(other Node) bool {
	if n.ID != other.ID || n.Type != other.Type {
		return false
	}
	if !n.Attrs.Equal(other.Attrs) {
		return false
	}
	if len(n.Content) != len(other.Content) {
		return false
	}
	for i := range n.Content {
		if n.Content[i] != other.Content[i] {
			return false
		}
	}
	return n.Marks.Equal(other.Marks)
}
