package schema

// Edge is one outgoing transition of a ContentMatch DFA state: Next is
// the state reached after accepting one child of type NodeType.
type Edge struct {
	NodeType string
	Next     *ContentMatch
}

type edge = Edge

// ContentMatch is an immutable DFA state compiled from a node type's
// content expression (spec.md §4.2). States are shared by reference:
// two node types whose content expressions compile to the same
// reachable-state graph end up pointing at overlapping ContentMatch
// values wherever the subset construction produced the same ε-closure
// set, which is the dedup the spec describes in §4.2.2 step 5 — we
// dedup by closure identity rather than by a second (edges, accept)
// minimization pass, which is simpler and still deterministic, at the
// cost of occasionally leaving behind a few DFA states that are
// behaviorally but not referentially identical (documented in
// DESIGN.md).
type ContentMatch struct {
	edges    []edge
	validEnd bool
}

// ValidEnd reports whether this state accepts end-of-sequence.
func (cm *ContentMatch) ValidEnd() bool { return cm.validEnd }

// Edges returns the state's outgoing transitions in compiled order.
// Callers must not mutate the returned slice.
func (cm *ContentMatch) Edges() []Edge {
	out := make([]Edge, len(cm.edges))
	copy(out, cm.edges)
	return out
}

// MatchType returns the successor state for a single child of the
// given node type (spec.md §4.2.3 match_type).
func (cm *ContentMatch) MatchType(nodeType string) (*ContentMatch, bool) {
	for _, e := range cm.edges {
		if e.NodeType == nodeType {
			return e.Next, true
		}
	}
	return nil, false
}

// MatchFragment feeds each child's type in order, returning the
// resulting state, or ok=false on the first mismatch (spec.md §4.2.3
// match_fragment). children may belong to groups at the schema level,
// but by the time a ContentMatch is compiled its edges already name
// concrete node types, so no group resolution happens here.
func (cm *ContentMatch) MatchFragment(children []string) (*ContentMatch, bool) {
	cur := cm
	for _, childType := range children {
		next, ok := cur.MatchType(childType)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// DefaultType returns the first outgoing edge's node type that has no
// required attributes, or ok=false if every outgoing edge requires at
// least one attribute (spec.md §4.2.3 default_type).
func (cm *ContentMatch) DefaultType(schema *Schema) (string, bool) {
	for _, e := range cm.edges {
		if !schema.hasRequiredAttrs(e.NodeType) {
			return e.NodeType, true
		}
	}
	return "", false
}

// Compatible reports whether cm and other share any outgoing node
// type (spec.md §4.2.3 compatible).
func (cm *ContentMatch) Compatible(other *ContentMatch) bool {
	for _, e := range cm.edges {
		if _, ok := other.MatchType(e.NodeType); ok {
			return true
		}
	}
	return false
}

type fillQueueItem struct {
	state *ContentMatch
	path  []string
}

// Fill computes the shortest list of node-type names that, appended
// at cm, allow `after` to match starting from the resulting state
// (spec.md §4.2.3 fill). When requireValidEnd is true, the state
// reached after consuming both the fill and `after` must also be a
// valid end. Only edges whose node type has no required attributes
// are ever traversed, since a filled node cannot itself be given
// attribute values. The search is a breadth-first search over DFA
// states so the returned list is shortest, and ties are broken by
// edge insertion order (spec.md §8 "Fill minimality").
func (cm *ContentMatch) Fill(after []string, requireValidEnd bool, schema *Schema) ([]string, bool) {
	satisfies := func(state *ContentMatch) bool {
		final, ok := state.MatchFragment(after)
		if !ok {
			return false
		}
		if requireValidEnd && !final.validEnd {
			return false
		}
		return true
	}

	if satisfies(cm) {
		return []string{}, true
	}

	visited := map[*ContentMatch]bool{cm: true}
	queue := []fillQueueItem{{state: cm}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		for _, e := range item.state.edges {
			if schema.hasRequiredAttrs(e.NodeType) {
				continue
			}
			next := e.Next
			if visited[next] {
				continue
			}
			visited[next] = true
			path := make([]string, len(item.path), len(item.path)+1)
			copy(path, item.path)
			path = append(path, e.NodeType)

			if satisfies(next) {
				return path, true
			}
			queue = append(queue, fillQueueItem{state: next, path: path})
		}
	}
	return nil, false
}
