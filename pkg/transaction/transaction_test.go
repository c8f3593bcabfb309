package transaction_test

import (
	"testing"

	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/patch"
	"github.com/moduforge-go/core/pkg/schema"
	"github.com/moduforge-go/core/pkg/step"
	"github.com/moduforge-go/core/pkg/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "paragraph+"},
		{Name: "paragraph", Content: "text*", Attrs: map[string]schema.AttrSpec{
			"align": {Required: false},
		}},
		{Name: "text"},
		{Name: "heading"},
	}, nil, "doc")
	require.NoError(t, err)
	return s
}

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

// Scenario 1 (spec.md §8): AttrStep setting paragraph.attrs.align.
func TestTransaction_SimpleEdit(t *testing.T) {
	pool := simplePool(t)
	sc := docSchema(t)
	tr := transaction.New(pool, sc, transaction.NextID())

	tr.Step(step.AttrStep{
		NodeID: "p1",
		Values: map[string]model.Value{"align": model.String("center")},
	})
	require.NoError(t, tr.Commit())

	p1, ok := tr.Doc().Node("p1")
	require.True(t, ok)
	align, ok := p1.Attrs.Get("align")
	require.True(t, ok)
	s, _ := align.AsString()
	assert.Equal(t, "center", s)

	patches := tr.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, "p1", string(patches[0].NodeID))
}

// Scenario 2 (spec.md §8): inserting a disallowed child rejects with
// SchemaViolation and leaves Doc() == BaseDoc().
func TestTransaction_MatcherRejection(t *testing.T) {
	pool := simplePool(t)
	sc := docSchema(t)
	tr := transaction.New(pool, sc, transaction.NextID())

	tr.Step(step.AddNodeStep{
		ParentID: "root",
		Subtrees: []patch.Subtree{{Nodes: []model.Node{model.New("h1", "heading", model.NewAttrs())}}},
	})
	err := tr.Commit()
	require.Error(t, err)
	var se *step.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, step.SchemaViolation, se.Kind)
	assert.True(t, tr.Doc().Equal(pool))
}

func TestTransaction_CommitTwiceErrors(t *testing.T) {
	pool := simplePool(t)
	tr := transaction.New(pool, docSchema(t), transaction.NextID())
	require.NoError(t, tr.Commit())
	err := tr.Commit()
	assert.ErrorIs(t, err, transaction.ErrAlreadyCommitted)
}

func TestTransaction_MetaAndStoredMarks(t *testing.T) {
	pool := simplePool(t)
	tr := transaction.New(pool, docSchema(t), transaction.NextID())

	tr.Meta("audit", model.Bool(true))
	v, ok := tr.GetMeta("audit")
	require.True(t, ok)
	b, _ := v.AsBool()
	assert.True(t, b)

	_, ok = tr.GetStoredMarks()
	assert.False(t, ok)
	tr.StoredMarks([]model.Mark{model.NewMark("strong", model.NewAttrs())})
	marks, ok := tr.GetStoredMarks()
	require.True(t, ok)
	require.Len(t, marks, 1)
}

// TestTransaction_ProvenanceConvention exercises the documented
// MetaTime/MetaOrigin convention: a dispatching runtime stamps both
// before submitting a transaction, and an append-transaction hook can
// read them back through the ordinary Meta accessors.
func TestTransaction_ProvenanceConvention(t *testing.T) {
	pool := simplePool(t)
	tr := transaction.New(pool, docSchema(t), transaction.NextID())

	tr.SetProvenance(1700000000000, "plugin:audit")

	timeVal, ok := tr.GetMeta(transaction.MetaTime)
	require.True(t, ok)
	millis, ok := timeVal.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), millis)

	originVal, ok := tr.GetMeta(transaction.MetaOrigin)
	require.True(t, ok)
	origin, ok := originVal.AsString()
	require.True(t, ok)
	assert.Equal(t, "plugin:audit", origin)

	keys := tr.MetaKeys()
	assert.Contains(t, keys, transaction.MetaTime)
	assert.Contains(t, keys, transaction.MetaOrigin)
}
