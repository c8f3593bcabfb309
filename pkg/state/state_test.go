package state_test

import (
	"context"
	"testing"

	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/patch"
	"github.com/moduforge-go/core/pkg/schema"
	"github.com/moduforge-go/core/pkg/state"
	"github.com/moduforge-go/core/pkg/step"
	"github.com/moduforge-go/core/pkg/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paragraphDocSchema(t *testing.T) *schema.Schema {
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

func initialPool(t *testing.T) *model.Pool {
	t.Helper()
	nodes := map[ids.NodeId]model.Node{
		"root": model.New("root", "doc", model.NewAttrs()).WithContent([]ids.NodeId{"p1"}),
		"p1":   model.New("p1", "paragraph", model.NewAttrs()),
	}
	pool, err := model.NewPool(nodes, "root")
	require.NoError(t, err)
	return pool
}

func newTestState(t *testing.T, plugins []*state.Plugin) *state.State {
	t.Helper()
	cfg, err := state.NewConfiguration(paragraphDocSchema(t), plugins, "")
	require.NoError(t, err)
	cfg.InitialPool = initialPool(t)
	s, err := state.Create(context.Background(), cfg)
	require.NoError(t, err)
	return s
}

// Scenario 1 (spec.md §8): simple AttrStep edit via the reducer.
func TestState_Apply_SimpleEdit(t *testing.T) {
	s := newTestState(t, nil)
	oldVersion := s.Version()

	tr := s.Tr()
	tr.Step(step.AttrStep{NodeID: "p1", Values: map[string]model.Value{"align": model.String("center")}})

	next, trs, err := s.Apply(context.Background(), tr)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Greater(t, next.Version(), oldVersion)

	p1, ok := next.Pool().Node("p1")
	require.True(t, ok)
	align, _ := p1.Attrs.Get("align")
	v, _ := align.AsString()
	assert.Equal(t, "center", v)
}

// Scenario 2 (spec.md §8): a step that violates the content matcher
// fails and the state is unchanged.
func TestState_Apply_SchemaViolation(t *testing.T) {
	s := newTestState(t, nil)

	tr := s.Tr()
	tr.Step(step.AddNodeStep{
		ParentID: "root",
		Subtrees: []patch.Subtree{{Nodes: []model.Node{model.New("h1", "heading", model.NewAttrs())}}},
	})

	_, _, err := s.Apply(context.Background(), tr)
	require.Error(t, err)
}

// Scenario 4 (spec.md §8): a plugin filter rejects a transaction
// carrying meta["readonly"]=true; Apply returns the original state and
// a one-element transaction list.
func TestState_Apply_FilterRejection(t *testing.T) {
	readonlyGuard := &state.Plugin{
		Key:      state.Key{ID: "readonly-guard"},
		Priority: 0,
		Filter: func(ctx context.Context, tr *transaction.Transaction, st *state.State) (bool, error) {
			if v, ok := tr.GetMeta("readonly"); ok {
				if b, _ := v.AsBool(); b {
					return false, nil
				}
			}
			return true, nil
		},
	}
	s := newTestState(t, []*state.Plugin{readonlyGuard})

	tr := s.Tr()
	tr.Meta("readonly", model.Bool(true))
	tr.Step(step.AttrStep{NodeID: "p1", Values: map[string]model.Value{"align": model.String("center")}})

	next, trs, err := s.Apply(context.Background(), tr)
	require.NoError(t, err)
	assert.Same(t, s, next)
	require.Len(t, trs, 1)
	assert.Same(t, tr, trs[0])
}

// countingField is a minimal StateField whose resource is an int
// counter incremented once per Apply call, used to drive scenario 3.
type countingField struct{}

func (countingField) Init(ctx context.Context, config *state.Configuration, st *state.State) (state.Resource, error) {
	return 0, nil
}
func (countingField) Apply(ctx context.Context, tr *transaction.Transaction, old state.Resource, oldState, newState *state.State) (state.Resource, error) {
	n, _ := old.(int)
	return n + 1, nil
}
func (countingField) Serialize(r state.Resource) ([]byte, error)  { return nil, nil }
func (countingField) Deserialize(b []byte) (state.Resource, error) { return 0, nil }

// Scenario 3 (spec.md §8): plugin A appends a transaction exactly once
// when it observes meta["audit"]=true; the final transaction list has
// 2 entries.
func TestState_Apply_AppendTransactionCascade(t *testing.T) {
	emitted := false
	pluginA := &state.Plugin{
		Key:        state.Key{ID: "a"},
		Priority:   0,
		StateField: countingField{},
		AppendTransaction: func(ctx context.Context, trs []*transaction.Transaction, oldState, newState *state.State) (*transaction.Transaction, error) {
			if emitted {
				return nil, nil
			}
			for _, tr := range trs {
				if v, ok := tr.GetMeta("audit"); ok {
					if b, _ := v.AsBool(); b {
						emitted = true
						follow := newState.Tr()
						follow.Step(step.AttrStep{NodeID: "p1", Values: map[string]model.Value{"audited": model.Bool(true)}})
						return follow, nil
					}
				}
			}
			return nil, nil
		},
	}
	pluginB := &state.Plugin{Key: state.Key{ID: "b"}, Priority: 1}

	s := newTestState(t, []*state.Plugin{pluginA, pluginB})

	tr := s.Tr()
	tr.Meta("audit", model.Bool(true))

	next, trs, err := s.Apply(context.Background(), tr)
	require.NoError(t, err)
	require.Len(t, trs, 2)

	counter, ok := next.Resource("a")
	require.True(t, ok)
	assert.Equal(t, 2, counter) // applyInner runs for root tr and the appended one
}

// Scenario 6 (spec.md §8): doc -> title paragraph+ fills ["title",
// "paragraph"] on creation, not ["paragraph","title"].
func TestState_Create_FillsMandatoryChildren(t *testing.T) {
	sc, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "title paragraph+"},
		{Name: "title"},
		{Name: "paragraph"},
	}, nil, "doc")
	require.NoError(t, err)

	cfg, err := state.NewConfiguration(sc, nil, "")
	require.NoError(t, err)
	s, err := state.Create(context.Background(), cfg)
	require.NoError(t, err)

	root := s.Pool().Root()
	require.Len(t, root.Content, 2)
	first, _ := s.Pool().Node(root.Content[0])
	second, _ := s.Pool().Node(root.Content[1])
	assert.Equal(t, "title", first.Type)
	assert.Equal(t, "paragraph", second.Type)
}
