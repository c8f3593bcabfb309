package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/moduforge-go/core/pkg/model"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// AttrSpec describes one declared attribute of a node or mark type
// (spec.md §3 NodeTypeSpec.attrs). Required means no Default is
// supplied.
type AttrSpec struct {
	Required bool
	Default  model.Value
	HasDefault bool
}

// NodeTypeSpec is the declarative definition of one node type
// (spec.md §3 NodeTypeSpec).
type NodeTypeSpec struct {
	Name    string
	Content string // content expression; empty means no children
	Marks   string // space-separated mark-type list, or "_" for any, or "" for none
	Attrs   map[string]AttrSpec
	Groups  []string
	Desc    string
}

// MarkTypeSpec is the declarative definition of one mark type
// (spec.md §3 MarkTypeSpec). Excludes is a space-separated list of
// mark-type names this mark cannot coexist with on the same node (or
// "_" to mean every other mark type), the same pattern syntax
// NodeTypeSpec.Marks uses. Spanning records whether the mark is
// expected to span multiple adjacent nodes rather than apply to a
// single one; the core carries the flag but does not itself implement
// span-merging behavior (left to a consumer, e.g. a rendering layer).
type MarkTypeSpec struct {
	Name     string
	Attrs    map[string]AttrSpec
	Excludes string
	Spanning bool
	Desc     string
}

// Schema is the compiled registry of node-type and mark-type
// definitions plus the top node type (spec.md §3 Schema, §4.2).
// Schema values are immutable and freely shareable across goroutines
// once constructed.
type Schema struct {
	nodes     map[string]NodeTypeSpec
	nodeOrder []string
	marks     map[string]MarkTypeSpec
	markOrder []string
	topNode   string

	matchers    map[string]*ContentMatch
	groupMember map[string][]string // group name -> member node types, in nodeOrder
}

// New compiles nodes and marks into a Schema. Every content expression
// is parsed and compiled; an undefined name (neither a node type nor a
// group) or a malformed expression fails construction with an *Error
// (spec.md §4.2.4). Every mark type referenced in a node's Marks list
// must exist.
func New(nodes []NodeTypeSpec, marks []MarkTypeSpec, topNodeType string) (*Schema, error) {
	s, err := newSchema(nodes, marks, topNodeType)
	if err != nil {
		slog.Warn("schema: compilation failed", "error", err)
		return nil, err
	}
	return s, nil
}

func newSchema(nodes []NodeTypeSpec, marks []MarkTypeSpec, topNodeType string) (*Schema, error) {
	s := &Schema{
		nodes:       make(map[string]NodeTypeSpec, len(nodes)),
		marks:       make(map[string]MarkTypeSpec, len(marks)),
		matchers:    make(map[string]*ContentMatch, len(nodes)),
		groupMember: make(map[string][]string),
	}

	for _, n := range nodes {
		if _, dup := s.nodes[n.Name]; dup {
			return nil, &Error{Message: fmt.Sprintf("duplicate node type %q", n.Name)}
		}
		s.nodes[n.Name] = n
		s.nodeOrder = append(s.nodeOrder, n.Name)
	}
	for _, m := range marks {
		if _, dup := s.marks[m.Name]; dup {
			return nil, &Error{Message: fmt.Sprintf("duplicate mark type %q", m.Name)}
		}
		s.marks[m.Name] = m
		s.markOrder = append(s.markOrder, m.Name)
	}
	for _, m := range marks {
		for _, excluded := range splitMarks(m.Excludes) {
			if excluded == "_" {
				continue
			}
			if _, ok := s.marks[excluded]; !ok {
				return nil, &Error{Message: fmt.Sprintf("mark type %q excludes undefined mark type %q", m.Name, excluded)}
			}
		}
	}

	for _, name := range s.nodeOrder {
		for _, g := range s.nodes[name].Groups {
			s.groupMember[g] = append(s.groupMember[g], name)
		}
	}

	if topNodeType != "" {
		if _, ok := s.nodes[topNodeType]; !ok {
			return nil, &Error{Message: fmt.Sprintf("top node type %q is not a declared node type", topNodeType)}
		}
	}
	s.topNode = topNodeType

	for _, name := range s.nodeOrder {
		spec := s.nodes[name]
		for _, markName := range splitMarks(spec.Marks) {
			if markName == "_" {
				continue
			}
			if _, ok := s.marks[markName]; !ok {
				return nil, &Error{Message: fmt.Sprintf("node type %q references undefined mark type %q", name, markName)}
			}
		}

		ast, err := parseExpr(spec.Content)
		if err != nil {
			return nil, err
		}
		resolved, err := s.resolveNames(ast, spec.Content)
		if err != nil {
			return nil, err
		}
		s.matchers[name] = internContentMatch(name, resolved)
	}

	return s, nil
}

func splitMarks(marks string) []string {
	marks = strings.TrimSpace(marks)
	if marks == "" {
		return nil
	}
	return strings.Fields(marks)
}

// resolveNames rewrites every Name in the AST to either stay a Name
// (concrete node type) or expand to a Choice of Names (group
// reference), failing with a precise *Error if a name is neither
// (spec.md §4.2.1, §4.2.4).
func (s *Schema) resolveNames(e Expr, expression string) (Expr, error) {
	switch v := e.(type) {
	case Name:
		if _, ok := s.nodes[v.Value]; ok {
			return v, nil
		}
		if members, ok := s.groupMember[v.Value]; ok {
			alts := make([]Expr, len(members))
			for i, m := range members {
				alts[i] = Name{Value: m}
			}
			if len(alts) == 1 {
				return alts[0], nil
			}
			return Choice{Alts: alts}, nil
		}
		return nil, s.nameError(v.Value, expression)
	case Seq:
		items := make([]Expr, len(v.Items))
		for i, it := range v.Items {
			r, err := s.resolveNames(it, expression)
			if err != nil {
				return nil, err
			}
			items[i] = r
		}
		return Seq{Items: items}, nil
	case Choice:
		alts := make([]Expr, len(v.Alts))
		for i, a := range v.Alts {
			r, err := s.resolveNames(a, expression)
			if err != nil {
				return nil, err
			}
			alts[i] = r
		}
		return Choice{Alts: alts}, nil
	case Repeat:
		r, err := s.resolveNames(v.Item, expression)
		if err != nil {
			return nil, err
		}
		return Repeat{Item: r, Min: v.Min, Max: v.Max}, nil
	default:
		return e, nil
	}
}

func (s *Schema) nameError(name, expression string) *Error {
	toks, _ := tokenize(expression)
	pos := 0
	for i, t := range toks {
		if t.text == name {
			pos = i
			break
		}
	}
	available := make(map[string]struct{}, len(s.nodeOrder))
	for _, n := range s.nodeOrder {
		available[n] = struct{}{}
	}
	return newExprError(fmt.Sprintf("undefined node type or group %q", name), expression, toks, pos, available)
}

// hasRequiredAttrs reports whether nodeType declares any attribute
// without a default — used by DefaultType and Fill, which may only
// synthesize nodes that need no attribute values supplied.
func (s *Schema) hasRequiredAttrs(nodeType string) bool {
	spec, ok := s.nodes[nodeType]
	if !ok {
		return true
	}
	for _, a := range spec.Attrs {
		if a.Required {
			return true
		}
	}
	return false
}

// NodeType returns the declared spec for name, if present.
func (s *Schema) NodeType(name string) (NodeTypeSpec, bool) {
	spec, ok := s.nodes[name]
	return spec, ok
}

// MarkType returns the declared spec for name, if present.
func (s *Schema) MarkType(name string) (MarkTypeSpec, bool) {
	spec, ok := s.marks[name]
	return spec, ok
}

// NodeTypeNames returns every declared node type name, in declaration
// order.
func (s *Schema) NodeTypeNames() []string {
	out := make([]string, len(s.nodeOrder))
	copy(out, s.nodeOrder)
	return out
}

// TopNodeType returns the schema's configured top node type, if any.
func (s *Schema) TopNodeType() (string, bool) {
	return s.topNode, s.topNode != ""
}

// ContentMatch returns the compiled start state for nodeType's content
// expression.
func (s *Schema) ContentMatch(nodeType string) (*ContentMatch, bool) {
	cm, ok := s.matchers[nodeType]
	return cm, ok
}

// AllowsMark reports whether nodeType's marks list permits markType:
// "_" permits any mark type, an empty list permits none, otherwise the
// mark type name must appear in the space-separated list.
func (s *Schema) AllowsMark(nodeType, markType string) bool {
	spec, ok := s.nodes[nodeType]
	if !ok {
		return false
	}
	list := splitMarks(spec.Marks)
	if len(list) == 1 && list[0] == "_" {
		return true
	}
	for _, m := range list {
		if m == markType {
			return true
		}
	}
	return false
}

// ExcludesMark reports whether markType's declared MarkTypeSpec.Excludes
// pattern covers other, meaning a node may not carry both at once
// (spec.md §3 MarkTypeSpec.excludes). Exclusion is checked from
// markType's side only, matching the "mark-type pattern" on the mark
// being added; an undeclared markType excludes nothing.
func (s *Schema) ExcludesMark(markType, other string) bool {
	spec, ok := s.marks[markType]
	if !ok {
		return false
	}
	list := splitMarks(spec.Excludes)
	if len(list) == 1 && list[0] == "_" {
		return other != markType
	}
	for _, m := range list {
		if m == other {
			return true
		}
	}
	return false
}

// GroupMembers returns the node types declared in group g, in
// declaration order.
func (s *Schema) GroupMembers(g string) []string {
	members := s.groupMember[g]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// metaSchemaJSON constrains the declarative document shape accepted by
// FromJSON: an object of node-type and mark-type definitions plus an
// optional top node type, each attr entry an object with an optional
// "required" boolean (spec.md §3, §7 "Schema loading": "supplied as a
// structured value").
const metaSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "top_node_type": {"type": "string"},
    "nodes": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "content": {"type": "string"},
          "marks": {"type": "string"},
          "desc": {"type": "string"},
          "groups": {"type": "array", "items": {"type": "string"}},
          "attrs": {
            "type": "object",
            "additionalProperties": {
              "type": "object",
              "properties": {
                "required": {"type": "boolean"},
                "default": {}
              }
            }
          }
        }
      }
    },
    "marks": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "desc": {"type": "string"},
          "excludes": {"type": "string"},
          "spanning": {"type": "boolean"},
          "attrs": {
            "type": "object",
            "additionalProperties": {
              "type": "object",
              "properties": {
                "required": {"type": "boolean"},
                "default": {}
              }
            }
          }
        }
      }
    }
  }
}`

var metaSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://moduforge.local/schema/document.schema.json"
	if err := c.AddResource(url, strings.NewReader(metaSchemaJSON)); err != nil {
		panic(fmt.Sprintf("schema: invalid embedded meta-schema: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded meta-schema failed to compile: %v", err))
	}
	metaSchema = compiled
}

type jsonAttrSpec struct {
	Required bool `json:"required"`
	Default  any  `json:"default,omitempty"`
	hasDefault bool
}

func (a *jsonAttrSpec) UnmarshalJSON(b []byte) error {
	var raw struct {
		Required bool `json:"required"`
		Default  *json.RawMessage `json:"default"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.Required = raw.Required
	if raw.Default != nil {
		var v any
		if err := json.Unmarshal(*raw.Default, &v); err != nil {
			return err
		}
		a.Default = v
		a.hasDefault = true
	}
	return nil
}

type jsonNodeTypeSpec struct {
	Content string                  `json:"content"`
	Marks   string                  `json:"marks"`
	Desc    string                  `json:"desc"`
	Groups  []string                `json:"groups"`
	Attrs   map[string]jsonAttrSpec `json:"attrs"`
}

type jsonMarkTypeSpec struct {
	Desc     string                  `json:"desc"`
	Attrs    map[string]jsonAttrSpec `json:"attrs"`
	Excludes string                  `json:"excludes"`
	Spanning bool                    `json:"spanning"`
}

type jsonDocument struct {
	TopNodeType string                      `json:"top_node_type"`
	Nodes       map[string]jsonNodeTypeSpec `json:"nodes"`
	Marks       map[string]jsonMarkTypeSpec `json:"marks"`
}

// FromJSON validates raw against the declarative schema-document
// meta-schema using jsonschema/v5, then compiles it into a Schema
// (spec.md §7 "Schema loading": "supplied as a structured value").
// Node and mark declaration order is taken to be the lexical order of
// their keys, since JSON object key order is not preserved by
// encoding/json — callers that need a specific node-declaration order
// (for group-member or default_type tie-breaking) should use New
// directly with an explicit []NodeTypeSpec instead.
func FromJSON(raw []byte) (*Schema, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("schema: invalid JSON: %w", err)
	}
	if err := metaSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema: document failed meta-schema validation: %w", err)
	}

	var doc jsonDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: invalid document: %w", err)
	}

	nodeNames := make([]string, 0, len(doc.Nodes))
	for name := range doc.Nodes {
		nodeNames = append(nodeNames, name)
	}
	sort.Strings(nodeNames)

	markNames := make([]string, 0, len(doc.Marks))
	for name := range doc.Marks {
		markNames = append(markNames, name)
	}
	sort.Strings(markNames)

	nodes := make([]NodeTypeSpec, 0, len(nodeNames))
	for _, name := range nodeNames {
		jn := doc.Nodes[name]
		nodes = append(nodes, NodeTypeSpec{
			Name:    name,
			Content: jn.Content,
			Marks:   jn.Marks,
			Attrs:   toAttrSpecs(jn.Attrs),
			Groups:  jn.Groups,
			Desc:    jn.Desc,
		})
	}

	marks := make([]MarkTypeSpec, 0, len(markNames))
	for _, name := range markNames {
		jm := doc.Marks[name]
		marks = append(marks, MarkTypeSpec{
			Name:     name,
			Attrs:    toAttrSpecs(jm.Attrs),
			Excludes: jm.Excludes,
			Spanning: jm.Spanning,
			Desc:     jm.Desc,
		})
	}

	return New(nodes, marks, doc.TopNodeType)
}

func toAttrSpecs(in map[string]jsonAttrSpec) map[string]AttrSpec {
	if in == nil {
		return nil
	}
	out := make(map[string]AttrSpec, len(in))
	for k, v := range in {
		spec := AttrSpec{Required: v.Required, HasDefault: v.hasDefault}
		if v.hasDefault {
			val, err := model.ValueFromAny(v.Default)
			if err == nil {
				spec.Default = val
			}
		}
		out[k] = spec
	}
	return out
}
