package step

import (
	"github.com/moduforge-go/core/pkg/draft"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/patch"
	"github.com/moduforge-go/core/pkg/schema"
)

// RemoveNodeStep removes a set of nodes, wherever their current
// parents are (spec.md §4.5). Ids need not share a parent.
type RemoveNodeStep struct {
	NodeIDs []ids.NodeId `json:"node_ids"`
}

func (s RemoveNodeStep) Name() string { return "remove_node" }

// Apply groups NodeIDs by their current parent (in order of first
// appearance) and removes each group with a single draft.RemoveNode
// call, so sibling removals collapse into one recorded patch the way
// a direct draft.RemoveNode call would.
func (s RemoveNodeStep) Apply(d *draft.Draft, sc *schema.Schema) error {
	var parentOrder []ids.NodeId
	groups := map[ids.NodeId][]ids.NodeId{}
	for _, id := range s.NodeIDs {
		if id == d.RootID() {
			return &Error{Kind: CannotRemoveRoot, Message: string(id)}
		}
		parent, ok := d.Parent(id)
		if !ok {
			return &Error{Kind: NodeMissing, Message: string(id)}
		}
		if _, seen := groups[parent]; !seen {
			parentOrder = append(parentOrder, parent)
		}
		groups[parent] = append(groups[parent], id)
	}

	for _, parent := range parentOrder {
		if err := d.RemoveNode(parent, groups[parent]); err != nil {
			return fromDraftErr(err)
		}
		if sc != nil {
			if err := validateContent(d, sc, parent); err != nil {
				return err
			}
		}
	}
	return nil
}

// Invert reconstructs one AddNodeStep per distinct original parent
// (in order of first appearance), each carrying the flattened
// subtrees pool held for the removed ids immediately before this step
// ran. Removed ids spanning more than one parent invert to a
// multiStep composing all of them.
func (s RemoveNodeStep) Invert(pool *model.Pool) Step {
	var parentOrder []ids.NodeId
	groups := map[ids.NodeId][]patch.Subtree{}
	for _, id := range s.NodeIDs {
		parent, ok := pool.Parent(id)
		if !ok {
			continue
		}
		get := func(nid ids.NodeId) (model.Node, []ids.NodeId, bool) {
			n, ok := pool.Node(nid)
			return n, n.Content, ok
		}
		flat, ok := patch.Flatten[model.Node](id, get)
		if !ok {
			continue
		}
		if _, seen := groups[parent]; !seen {
			parentOrder = append(parentOrder, parent)
		}
		groups[parent] = append(groups[parent], patch.Subtree{Nodes: flat})
	}

	if len(parentOrder) == 0 {
		return multiStep{}
	}
	if len(parentOrder) == 1 {
		return AddNodeStep{ParentID: parentOrder[0], Subtrees: groups[parentOrder[0]]}
	}
	adds := make([]Step, len(parentOrder))
	for i, p := range parentOrder {
		adds[i] = AddNodeStep{ParentID: p, Subtrees: groups[p]}
	}
	return multiStep{steps: adds}
}
