// Package patch defines the recorded-change format emitted by a Draft
// (spec.md §4.3, §4.4). A patch is self-contained: it carries enough
// information to compute its own inverse without consulting the pool
// it was produced against.
package patch

import (
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
)

// Kind discriminates the patch variants of spec.md §4.3.
type Kind int

const (
	UpdateAttr Kind = iota
	AddNode
	RemoveNode
	AddMark
	RemoveMark
	MoveNode
	SortChildren
)

func (k Kind) String() string {
	switch k {
	case UpdateAttr:
		return "UpdateAttr"
	case AddNode:
		return "AddNode"
	case RemoveNode:
		return "RemoveNode"
	case AddMark:
		return "AddMark"
	case RemoveMark:
		return "RemoveMark"
	case MoveNode:
		return "MoveNode"
	case SortChildren:
		return "SortChildren"
	default:
		return "Unknown"
	}
}

// Subtree is a flattened node-plus-descendants payload: Nodes[0] is
// the subtree root, and every id it (transitively) references via
// Content also appears somewhere in Nodes. This is what AddNode and
// RemoveNode patches carry, so a patch never needs to re-walk a pool
// to discover what it added or removed.
type Subtree struct {
	Nodes []model.Node
}

// RootID returns the id of the subtree's root node.
func (s Subtree) RootID() ids.NodeId {
	if len(s.Nodes) == 0 {
		return ""
	}
	return s.Nodes[0].ID
}

// Patch is one recorded mutation, in the tagged-union style used
// throughout this module for small closed sets of variants (compare
// model.Value): a Kind discriminator plus the fields relevant to that
// kind. Every field not used by Kind is left zero.
type Patch struct {
	Kind Kind
	Path []string

	// UpdateAttr
	NodeID   ids.NodeId
	OldAttrs model.Attrs
	NewAttrs model.Attrs

	// AddNode / RemoveNode
	ParentID ids.NodeId
	Subtrees []Subtree
	Position int // index in parent.Content where the subtrees sit

	// AddMark / RemoveMark
	MarkNodeID ids.NodeId
	Marks      []model.Mark

	// MoveNode
	SourceParent   ids.NodeId
	TargetParent   ids.NodeId
	MovedNodeID    ids.NodeId
	SourcePosition int // index the node held in source.Content before the move
	TargetPosition int // index the node was inserted at in target.Content

	// SortChildren
	SortParentID ids.NodeId
	OldOrder     []ids.NodeId
	NewOrder     []ids.NodeId
}

// Invert returns the mechanical inverse of p: applying p then its
// inverse to the same pool yields a pool structurally equal to the
// start (spec.md §4.3, §8 "Patch invertibility").
func (p Patch) Invert() Patch {
	switch p.Kind {
	case UpdateAttr:
		inv := p
		inv.OldAttrs, inv.NewAttrs = p.NewAttrs, p.OldAttrs
		return inv
	case AddNode:
		inv := p
		inv.Kind = RemoveNode
		return inv
	case RemoveNode:
		inv := p
		inv.Kind = AddNode
		return inv
	case AddMark:
		inv := p
		inv.Kind = RemoveMark
		return inv
	case RemoveMark:
		inv := p
		inv.Kind = AddMark
		return inv
	case MoveNode:
		inv := p
		inv.SourceParent, inv.TargetParent = p.TargetParent, p.SourceParent
		inv.SourcePosition, inv.TargetPosition = p.TargetPosition, p.SourcePosition
		return inv
	case SortChildren:
		inv := p
		inv.OldOrder, inv.NewOrder = p.NewOrder, p.OldOrder
		return inv
	default:
		return p
	}
}

// Reverse inverts a whole list of patches, in reverse application
// order, so that applying ps and then Reverse(ps) restores the
// original pool (spec.md §4.4 reverse_patches).
func Reverse(ps []Patch) []Patch {
	out := make([]Patch, len(ps))
	for i, p := range ps {
		out[len(ps)-1-i] = p.Invert()
	}
	return out
}
