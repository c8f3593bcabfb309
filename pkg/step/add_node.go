package step

import (
	"github.com/moduforge-go/core/pkg/draft"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/patch"
	"github.com/moduforge-go/core/pkg/schema"
)

// AddNodeStep inserts subtrees at the end of ParentID's content
// (spec.md §4.5).
type AddNodeStep struct {
	ParentID ids.NodeId      `json:"parent_id"`
	Subtrees []patch.Subtree `json:"subtrees"`
}

func (s AddNodeStep) Name() string { return "add_node" }

// Apply inserts the subtrees and, given a schema, rejects the result
// with SchemaViolation if the parent's new content sequence isn't
// accepted by its content matcher.
func (s AddNodeStep) Apply(d *draft.Draft, sc *schema.Schema) error {
	if _, ok := d.Node(s.ParentID); !ok {
		return &Error{Kind: ParentMissing, Message: string(s.ParentID)}
	}
	if err := d.AddNode(s.ParentID, s.Subtrees); err != nil {
		return fromDraftErr(err)
	}
	if sc != nil {
		if err := validateContent(d, sc, s.ParentID); err != nil {
			return err
		}
	}
	return nil
}

// Invert returns a RemoveNodeStep for every node id this step added.
func (s AddNodeStep) Invert(pool *model.Pool) Step {
	removeIDs := make([]ids.NodeId, 0, len(s.Subtrees))
	for _, st := range s.Subtrees {
		removeIDs = append(removeIDs, st.RootID())
	}
	return RemoveNodeStep{NodeIDs: removeIDs}
}
