package step

import (
	"fmt"

	"github.com/moduforge-go/core/pkg/draft"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/schema"
)

// AddMarkStep attaches marks to a node (spec.md §4.5).
type AddMarkStep struct {
	NodeID ids.NodeId   `json:"id"`
	Marks  []model.Mark `json:"marks"`
}

func (s AddMarkStep) Name() string { return "add_mark" }

// Apply rejects a mark type a schema doesn't allow on the node's type,
// or one excluded by a mark already on the node (spec.md §3
// MarkTypeSpec.excludes), with SchemaViolation, and an already-present
// mark with DuplicateMark, before ever calling into the draft.
func (s AddMarkStep) Apply(d *draft.Draft, sc *schema.Schema) error {
	n, ok := d.Node(s.NodeID)
	if !ok {
		return &Error{Kind: NodeMissing, Message: string(s.NodeID)}
	}
	for _, m := range s.Marks {
		if sc != nil && !sc.AllowsMark(n.Type, m.Type) {
			return &Error{Kind: SchemaViolation, Message: fmt.Sprintf("mark %q not allowed on %q", m.Type, n.Type)}
		}
		if n.Marks.Has(m) {
			return &Error{Kind: DuplicateMark, Message: string(s.NodeID)}
		}
		if sc != nil {
			for _, existing := range n.Marks.Slice() {
				if sc.ExcludesMark(m.Type, existing.Type) || sc.ExcludesMark(existing.Type, m.Type) {
					return &Error{Kind: SchemaViolation, Message: fmt.Sprintf("mark %q excludes present mark %q", m.Type, existing.Type)}
				}
			}
		}
	}
	if err := d.AddMark(s.NodeID, s.Marks); err != nil {
		return fromDraftErr(err)
	}
	return nil
}

// Invert returns a RemoveMarkStep for the types this step added.
func (s AddMarkStep) Invert(pool *model.Pool) Step {
	return RemoveMarkStep{NodeID: s.NodeID, MarkTypes: markTypes(s.Marks)}
}

// RemoveMarkStep detaches marks of the given types from a node
// (spec.md §4.5). Unlike AddMarkStep, this carries only type names:
// the node's existing mark (with its attrs) is looked up at apply
// time for structural-equality removal.
type RemoveMarkStep struct {
	NodeID    ids.NodeId `json:"id"`
	MarkTypes []string   `json:"mark_types"`
}

func (s RemoveMarkStep) Name() string { return "remove_mark" }

func (s RemoveMarkStep) Apply(d *draft.Draft, sc *schema.Schema) error {
	for _, mt := range s.MarkTypes {
		n, ok := d.Node(s.NodeID)
		if !ok {
			return &Error{Kind: NodeMissing, Message: string(s.NodeID)}
		}
		found, ok := findMarkByType(n.Marks.Slice(), mt)
		if !ok {
			continue
		}
		if err := d.RemoveMark(s.NodeID, found); err != nil {
			return fromDraftErr(err)
		}
	}
	return nil
}

// Invert returns an AddMarkStep restoring whichever of MarkTypes
// pool's node actually carried, with their original attrs.
func (s RemoveMarkStep) Invert(pool *model.Pool) Step {
	var restore []model.Mark
	if n, ok := pool.Node(s.NodeID); ok {
		for _, mt := range s.MarkTypes {
			if m, ok := findMarkByType(n.Marks.Slice(), mt); ok {
				restore = append(restore, m)
			}
		}
	}
	return AddMarkStep{NodeID: s.NodeID, Marks: restore}
}

func findMarkByType(marks []model.Mark, markType string) (model.Mark, bool) {
	for _, m := range marks {
		if m.Type == markType {
			return m, true
		}
	}
	return model.Mark{}, false
}

func markTypes(marks []model.Mark) []string {
	out := make([]string, len(marks))
	for i, m := range marks {
		out[i] = m.Type
	}
	return out
}
