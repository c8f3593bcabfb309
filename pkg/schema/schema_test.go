package schema_test

import (
	"testing"

	"github.com/moduforge-go/core/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleDocSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "paragraph+"},
		{Name: "paragraph", Content: "text*", Attrs: map[string]schema.AttrSpec{
			"align": {Required: false},
		}},
		{Name: "text"},
	}, nil, "doc")
	require.NoError(t, err)
	return s
}

func TestSchema_MatchFragment_Accepts(t *testing.T) {
	s := simpleDocSchema(t)
	cm, ok := s.ContentMatch("doc")
	require.True(t, ok)

	final, ok := cm.MatchFragment([]string{"paragraph"})
	require.True(t, ok)
	assert.True(t, final.ValidEnd())

	final, ok = cm.MatchFragment([]string{"paragraph", "paragraph", "paragraph"})
	require.True(t, ok)
	assert.True(t, final.ValidEnd())
}

func TestSchema_MatchFragment_RejectsEmptyAndWrongType(t *testing.T) {
	s := simpleDocSchema(t)
	cm, _ := s.ContentMatch("doc")

	_, ok := cm.MatchFragment(nil)
	assert.True(t, ok, "empty sequence always matches some state")
	emptyState, _ := cm.MatchFragment(nil)
	assert.False(t, emptyState.ValidEnd(), "doc requires at least one paragraph")

	_, ok = cm.MatchFragment([]string{"heading"})
	assert.False(t, ok)
}

func TestSchema_GroupResolution(t *testing.T) {
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "block+"},
		{Name: "paragraph", Groups: []string{"block"}},
		{Name: "heading", Groups: []string{"block"}},
	}, nil, "doc")
	require.NoError(t, err)

	cm, _ := s.ContentMatch("doc")
	final, ok := cm.MatchFragment([]string{"paragraph", "heading", "paragraph"})
	require.True(t, ok)
	assert.True(t, final.ValidEnd())
}

func TestSchema_FillForCreation(t *testing.T) {
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "title paragraph+"},
		{Name: "title"},
		{Name: "paragraph"},
	}, nil, "doc")
	require.NoError(t, err)

	cm, _ := s.ContentMatch("doc")
	fill, ok := cm.Fill(nil, true, s)
	require.True(t, ok)
	assert.Equal(t, []string{"title", "paragraph"}, fill)
}

func TestSchema_Fill_RequiredAttrsNeverSynthesized(t *testing.T) {
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "figure|paragraph"},
		{Name: "figure", Attrs: map[string]schema.AttrSpec{"src": {Required: true}}},
		{Name: "paragraph"},
	}, nil, "doc")
	require.NoError(t, err)

	cm, _ := s.ContentMatch("doc")
	fill, ok := cm.Fill(nil, true, s)
	require.True(t, ok)
	assert.Equal(t, []string{"paragraph"}, fill, "figure requires an attribute and must never be synthesized by fill")
}

func TestSchema_DefaultType(t *testing.T) {
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "figure|paragraph"},
		{Name: "figure", Attrs: map[string]schema.AttrSpec{"src": {Required: true}}},
		{Name: "paragraph"},
	}, nil, "doc")
	require.NoError(t, err)

	cm, _ := s.ContentMatch("doc")
	dt, ok := cm.DefaultType(s)
	require.True(t, ok)
	assert.Equal(t, "paragraph", dt)
}

func TestSchema_Compatible(t *testing.T) {
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "paragraph+"},
		{Name: "paragraph", Content: "text*"},
		{Name: "text"},
	}, nil, "doc")
	require.NoError(t, err)

	docStart, _ := s.ContentMatch("doc")
	paraStart, _ := s.ContentMatch("paragraph")
	assert.False(t, docStart.Compatible(paraStart), "doc only accepts paragraph, paragraph only accepts text")
}

func TestSchema_UndefinedNodeTypeError(t *testing.T) {
	_, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "missing+"},
	}, nil, "doc")
	require.Error(t, err)

	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "missing+", se.Expression)
	assert.NotEmpty(t, se.AvailableTypes)
	assert.LessOrEqual(t, len(se.AvailableTypes), 5)
}

func TestSchema_MalformedExpressionError(t *testing.T) {
	_, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "(paragraph"},
		{Name: "paragraph"},
	}, nil, "doc")
	require.Error(t, err)
	var se *schema.Error
	require.ErrorAs(t, err, &se)
}

func TestSchema_AllowsMark(t *testing.T) {
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "paragraph+"},
		{Name: "paragraph", Content: "text*", Marks: "bold italic"},
		{Name: "text", Marks: "_"},
	}, []schema.MarkTypeSpec{
		{Name: "bold"},
		{Name: "italic"},
		{Name: "link"},
	}, "doc")
	require.NoError(t, err)

	assert.True(t, s.AllowsMark("paragraph", "bold"))
	assert.False(t, s.AllowsMark("paragraph", "link"))
	assert.True(t, s.AllowsMark("text", "link"), "marks: \"_\" allows any mark type")
}

func TestSchema_ExcludesMark(t *testing.T) {
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "text*"},
		{Name: "text", Marks: "_"},
	}, []schema.MarkTypeSpec{
		{Name: "bold"},
		{Name: "strong", Excludes: "bold"},
		{Name: "comment", Excludes: "_"},
		{Name: "italic"},
	}, "doc")
	require.NoError(t, err)

	assert.True(t, s.ExcludesMark("strong", "bold"))
	assert.False(t, s.ExcludesMark("bold", "italic"))
	assert.True(t, s.ExcludesMark("comment", "bold"), "excludes: \"_\" excludes every other mark type")
	assert.False(t, s.ExcludesMark("comment", "comment"), "a mark type never excludes itself")
}

func TestSchema_ExcludesUndefinedMarkTypeErrors(t *testing.T) {
	_, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc"},
	}, []schema.MarkTypeSpec{
		{Name: "strong", Excludes: "missing"},
	}, "doc")
	assert.Error(t, err)
}

// Two Schema instances compiling the same node type with the same
// content expression share the compiled ContentMatch instance (SPEC_FULL.md
// SUPPLEMENTED FEATURES "Content expression caching keyed by schema
// fingerprint").
func TestSchema_ContentMatchSharedAcrossSchemas(t *testing.T) {
	build := func() *schema.Schema {
		s, err := schema.New([]schema.NodeTypeSpec{
			{Name: "doc", Content: "paragraph+"},
			{Name: "paragraph"},
		}, nil, "doc")
		require.NoError(t, err)
		return s
	}

	s1, s2 := build(), build()
	cm1, ok1 := s1.ContentMatch("doc")
	cm2, ok2 := s2.ContentMatch("doc")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Same(t, cm1, cm2, "identical (node type, resolved expression) pairs must share one compiled ContentMatch")
}

// A content expression referencing a group resolves differently under
// two schemas with different group membership, so the cache must not
// conflate them even though the raw expression text is identical.
func TestSchema_ContentMatchCacheRespectsGroupResolution(t *testing.T) {
	sA, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "block+"},
		{Name: "paragraph", Groups: []string{"block"}},
	}, nil, "doc")
	require.NoError(t, err)

	sB, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "block+"},
		{Name: "heading", Groups: []string{"block"}},
	}, nil, "doc")
	require.NoError(t, err)

	cmA, _ := sA.ContentMatch("doc")
	_, okA := cmA.MatchType("paragraph")
	assert.True(t, okA)

	cmB, _ := sB.ContentMatch("doc")
	_, okHeading := cmB.MatchType("heading")
	assert.True(t, okHeading)
	_, okParagraph := cmB.MatchType("paragraph")
	assert.False(t, okParagraph, "schema B's \"block\" group never included paragraph")
}

func TestSchema_FromJSON(t *testing.T) {
	raw := []byte(`{
		"top_node_type": "doc",
		"nodes": {
			"doc": {"content": "paragraph+"},
			"paragraph": {"content": "text*", "attrs": {"align": {"required": false, "default": "left"}}},
			"text": {}
		}
	}`)
	s, err := schema.FromJSON(raw)
	require.NoError(t, err)

	top, ok := s.TopNodeType()
	require.True(t, ok)
	assert.Equal(t, "doc", top)

	spec, ok := s.NodeType("paragraph")
	require.True(t, ok)
	align, ok := spec.Attrs["align"]
	require.True(t, ok)
	assert.True(t, align.HasDefault)
}

func TestSchema_FromJSON_RejectsMalformedDocument(t *testing.T) {
	_, err := schema.FromJSON([]byte(`{"nodes": "not-an-object"}`))
	assert.Error(t, err)
}

func TestSchema_RepetitionRange(t *testing.T) {
	s, err := schema.New([]schema.NodeTypeSpec{
		{Name: "doc", Content: "paragraph{2,3}"},
		{Name: "paragraph"},
	}, nil, "doc")
	require.NoError(t, err)

	cm, _ := s.ContentMatch("doc")
	_, ok := cm.MatchFragment([]string{"paragraph"})
	assert.True(t, ok, "partial prefix of a bounded repetition should still be a valid (non-accepting) state")
	one, _ := cm.MatchFragment([]string{"paragraph"})
	assert.False(t, one.ValidEnd())

	two, ok := cm.MatchFragment([]string{"paragraph", "paragraph"})
	require.True(t, ok)
	assert.True(t, two.ValidEnd())

	_, ok = cm.MatchFragment([]string{"paragraph", "paragraph", "paragraph", "paragraph"})
	assert.False(t, ok, "exceeds the {2,3} upper bound")
}
