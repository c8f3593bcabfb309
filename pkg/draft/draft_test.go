package draft_test

import (
	"testing"

	"github.com/moduforge-go/core/pkg/draft"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simplePool(t *testing.T) *model.Pool {
	t.Helper()
	nodes := map[ids.NodeId]model.Node{
		"root": model.New("root", "doc", model.NewAttrs()).WithContent([]ids.NodeId{"p1"}),
		"p1":   model.New("p1", "paragraph", model.NewAttrs()),
	}
	pool, err := model.NewPool(nodes, "root")
	require.NoError(t, err)
	return pool
}

func TestDraft_UpdateAttr(t *testing.T) {
	d := draft.Open(simplePool(t))
	err := d.UpdateAttr("p1", model.NewAttrs().Set("align", model.String("center")))
	require.NoError(t, err)

	n, ok := d.Node("p1")
	require.True(t, ok)
	align, _ := n.Attrs.Get("align")
	s, _ := align.AsString()
	assert.Equal(t, "center", s)

	patches := d.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, patch.UpdateAttr, patches[0].Kind)
}

func TestDraft_UpdateAttr_NodeNotFound(t *testing.T) {
	d := draft.Open(simplePool(t))
	err := d.UpdateAttr("ghost", model.NewAttrs())
	require.Error(t, err)
	var de *draft.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, draft.NodeNotFound, de.Kind)
}

func TestDraft_AddNode_CommitProducesValidPool(t *testing.T) {
	d := draft.Open(simplePool(t))
	sub := patch.Subtree{Nodes: []model.Node{model.New("p2", "paragraph", model.NewAttrs())}}
	require.NoError(t, d.AddNode("root", []patch.Subtree{sub}))

	pool, patches, err := d.Commit()
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Len())
	require.Len(t, patches, 1)

	root, _ := pool.Node("root")
	assert.Equal(t, []ids.NodeId{"p1", "p2"}, root.Content)
}

func TestDraft_RemoveNode(t *testing.T) {
	d := draft.Open(simplePool(t))
	require.NoError(t, d.RemoveNode("root", []ids.NodeId{"p1"}))

	_, ok := d.Node("p1")
	assert.False(t, ok)

	root, _ := d.Node("root")
	assert.Empty(t, root.Content)
}

func TestDraft_RemoveNode_RejectsRoot(t *testing.T) {
	d := draft.Open(simplePool(t))
	// root is never in any node's content, so removing it is rejected
	// by the InvalidParenting check, which runs before the
	// CannotRemoveRoot check.
	err := d.RemoveNode("root", []ids.NodeId{"root"})
	require.Error(t, err)
}

func TestDraft_AddMark_RejectsDuplicate(t *testing.T) {
	d := draft.Open(simplePool(t))
	bold := model.NewMark("bold", model.NewAttrs())
	require.NoError(t, d.AddMark("p1", []model.Mark{bold}))

	err := d.AddMark("p1", []model.Mark{bold})
	require.Error(t, err)
	var de *draft.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, draft.MarkAlreadyPresent, de.Kind)
}

func TestDraft_RemoveMark(t *testing.T) {
	d := draft.Open(simplePool(t))
	bold := model.NewMark("bold", model.NewAttrs())
	require.NoError(t, d.AddMark("p1", []model.Mark{bold}))
	require.NoError(t, d.RemoveMark("p1", bold))

	n, _ := d.Node("p1")
	assert.Equal(t, 0, n.Marks.Len())
}

func TestDraft_MoveNode(t *testing.T) {
	nodes := map[ids.NodeId]model.Node{
		"root": model.New("root", "doc", model.NewAttrs()).WithContent([]ids.NodeId{"a", "b"}),
		"a":    model.New("a", "section", model.NewAttrs()).WithContent([]ids.NodeId{"c"}),
		"b":    model.New("b", "section", model.NewAttrs()),
		"c":    model.New("c", "paragraph", model.NewAttrs()),
	}
	pool, err := model.NewPool(nodes, "root")
	require.NoError(t, err)

	d := draft.Open(pool)
	require.NoError(t, d.MoveNode("a", "b", "c", nil))

	a, _ := d.Node("a")
	assert.Empty(t, a.Content)
	b, _ := d.Node("b")
	assert.Equal(t, []ids.NodeId{"c"}, b.Content)

	parent, ok := d.Parent("c")
	require.True(t, ok)
	assert.Equal(t, ids.NodeId("b"), parent)
}

func TestDraft_SortChildren(t *testing.T) {
	nodes := map[ids.NodeId]model.Node{
		"root": model.New("root", "doc", model.NewAttrs()).WithContent([]ids.NodeId{"c", "a", "b"}),
		"a":    model.New("a", "paragraph", model.NewAttrs()),
		"b":    model.New("b", "paragraph", model.NewAttrs()),
		"c":    model.New("c", "paragraph", model.NewAttrs()),
	}
	pool, err := model.NewPool(nodes, "root")
	require.NoError(t, err)

	d := draft.Open(pool)
	require.NoError(t, d.SortChildren("root", func(a, b ids.NodeId) bool { return a < b }))

	root, _ := d.Node("root")
	assert.Equal(t, []ids.NodeId{"a", "b", "c"}, root.Content)
}

func TestDraft_ApplyThenReversePatches_RestoresPool(t *testing.T) {
	base := simplePool(t)
	d := draft.Open(base)

	require.NoError(t, d.UpdateAttr("p1", model.NewAttrs().Set("align", model.String("center"))))
	bold := model.NewMark("bold", model.NewAttrs())
	require.NoError(t, d.AddMark("p1", []model.Mark{bold}))
	sub := patch.Subtree{Nodes: []model.Node{model.New("p2", "paragraph", model.NewAttrs())}}
	require.NoError(t, d.AddNode("root", []patch.Subtree{sub}))

	recorded := append([]patch.Patch{}, d.Patches()...)

	// Replaying the forward patches against a fresh draft from the
	// same base must reproduce the same committed pool.
	d2 := draft.Open(base)
	require.NoError(t, d2.ApplyPatches(recorded))
	pool1, _, err := d.Commit()
	require.NoError(t, err)
	pool2, _, err := d2.Commit()
	require.NoError(t, err)
	assert.True(t, pool1.Equal(pool2))

	// Reversing them from that point must restore the original pool.
	require.NoError(t, d2.ReversePatches(recorded))
	restored, _, err := d2.Commit()
	require.NoError(t, err)
	assert.True(t, base.Equal(restored))
}

func TestDraft_EnterExitPath_EmbedsInPatches(t *testing.T) {
	d := draft.Open(simplePool(t))
	d.EnterMap("meta")
	d.EnterList(0)
	require.NoError(t, d.UpdateAttr("p1", model.NewAttrs()))
	d.Exit()
	d.Exit()

	patches := d.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, []string{"meta", "0"}, patches[0].Path)
}

func TestDraft_ReplaceNode_RequiresSameRootID(t *testing.T) {
	d := draft.Open(simplePool(t))
	wrongID := patch.Subtree{Nodes: []model.Node{model.New("wrong", "heading", model.NewAttrs())}}
	err := d.ReplaceNode("p1", []patch.Subtree{wrongID})
	require.Error(t, err)
	var de *draft.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, draft.InvalidNodeId, de.Kind)
}

func TestDraft_ReplaceNode_SwapsSubtreeInPlace(t *testing.T) {
	d := draft.Open(simplePool(t))
	replacement := patch.Subtree{Nodes: []model.Node{model.New("p1", "heading", model.NewAttrs())}}
	require.NoError(t, d.ReplaceNode("p1", []patch.Subtree{replacement}))

	n, ok := d.Node("p1")
	require.True(t, ok)
	assert.Equal(t, "heading", n.Type)

	root, _ := d.Node("root")
	assert.Equal(t, []ids.NodeId{"p1"}, root.Content)
}
