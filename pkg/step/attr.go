package step

import (
	"github.com/moduforge-go/core/pkg/draft"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/schema"
)

// AttrStep merges a set of attribute values into a node (spec.md
// §4.5).
type AttrStep struct {
	NodeID ids.NodeId              `json:"id"`
	Values map[string]model.Value `json:"values"`
}

func (s AttrStep) Name() string { return "attr" }

// Apply merges Values into NodeID's attrs in sorted key order, so the
// recorded patch is independent of map iteration order.
func (s AttrStep) Apply(d *draft.Draft, sc *schema.Schema) error {
	partial := model.NewAttrs()
	for _, k := range sortedKeys(s.Values) {
		partial = partial.Set(k, s.Values[k])
	}
	if err := d.UpdateAttr(s.NodeID, partial); err != nil {
		return fromDraftErr(err)
	}
	return nil
}

// Invert restores the prior value of each changed key from pool,
// dropping keys the node didn't previously have at all — applying the
// inverse then clears nothing for those, since AttrStep only ever
// merges and never deletes a key.
func (s AttrStep) Invert(pool *model.Pool) Step {
	old := map[string]model.Value{}
	if n, ok := pool.Node(s.NodeID); ok {
		for k := range s.Values {
			if v, ok := n.Attrs.Get(k); ok {
				old[k] = v
			}
		}
	}
	return AttrStep{NodeID: s.NodeID, Values: old}
}
