// Package draft implements the mutable working copy a Transaction
// edits: a clone of a Pool's node map, recording every mutation as a
// Patch (spec.md §4.4).
package draft

import (
	"log/slog"
	"sort"

	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/patch"
)

// Draft wraps a working copy of a pool's node map and records patches
// during mutation. The working copy is cloned once, at Open, from the
// base pool; base is never itself mutated.
type Draft struct {
	base      *model.Pool
	nodes     map[ids.NodeId]model.Node
	rootID    ids.NodeId
	parentMap map[ids.NodeId]ids.NodeId

	patches     []patch.Patch
	currentPath []string
	skipRecord  bool
}

// Open clones base's node map into a new Draft.
func Open(base *model.Pool) *Draft {
	d := &Draft{
		base:      base,
		nodes:     make(map[ids.NodeId]model.Node, base.Len()),
		rootID:    base.RootID(),
		parentMap: make(map[ids.NodeId]ids.NodeId, base.Len()),
	}
	for _, id := range base.NodeIDs() {
		n, _ := base.Node(id)
		d.nodes[id] = n
	}
	for _, id := range base.NodeIDs() {
		if p, ok := base.Parent(id); ok {
			d.parentMap[id] = p
		}
	}
	return d
}

// Node returns the current working-copy value for id.
func (d *Draft) Node(id ids.NodeId) (model.Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Parent returns id's current parent, if any.
func (d *Draft) Parent(id ids.NodeId) (ids.NodeId, bool) {
	p, ok := d.parentMap[id]
	return p, ok
}

// RootID returns the draft's (fixed) root id.
func (d *Draft) RootID() ids.NodeId { return d.rootID }

// Patches returns the patches recorded so far, in recording order.
// Callers must not mutate the returned slice.
func (d *Draft) Patches() []patch.Patch { return d.patches }

func (d *Draft) record(p patch.Patch) {
	if d.skipRecord {
		return
	}
	d.patches = append(d.patches, p)
}

func (d *Draft) snapshotPath() []string {
	if len(d.currentPath) == 0 {
		return nil
	}
	out := make([]string, len(d.currentPath))
	copy(out, d.currentPath)
	return out
}

// EnterMap pushes key onto the current path; every patch recorded
// until the matching Exit embeds it (spec.md §4.4 enter_map).
func (d *Draft) EnterMap(key string) { d.currentPath = append(d.currentPath, key) }

// EnterList pushes index onto the current path (spec.md §4.4
// enter_list).
func (d *Draft) EnterList(index int) {
	d.currentPath = append(d.currentPath, itoa(index))
}

// Exit pops the last pushed path component, if any.
func (d *Draft) Exit() {
	if len(d.currentPath) > 0 {
		d.currentPath = d.currentPath[:len(d.currentPath)-1]
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// UpdateAttr merges partial into id's attrs, recording the old and new
// values (spec.md §4.4 update_attr). Fails NodeNotFound.
func (d *Draft) UpdateAttr(id ids.NodeId, partial model.Attrs) error {
	n, ok := d.nodes[id]
	if !ok {
		return &Error{Kind: NodeNotFound, NodeID: id}
	}
	old := n.Attrs
	merged := old.Merge(partial)
	d.nodes[id] = n.WithAttrs(merged)
	d.record(patch.Patch{
		Kind:     patch.UpdateAttr,
		Path:     d.snapshotPath(),
		NodeID:   id,
		OldAttrs: old,
		NewAttrs: merged,
	})
	return nil
}

// registerSubtree adds every node of st to the working copy and
// derives parentMap entries for it, including st's root pointing at
// parentID. An empty parentID means "no parent" (used for a pool-root
// replacement), and no parentMap entry is recorded for the root in
// that case.
func (d *Draft) registerSubtree(st patch.Subtree, parentID ids.NodeId) {
	for _, n := range st.Nodes {
		d.nodes[n.ID] = n
	}
	for _, n := range st.Nodes {
		for _, c := range n.Content {
			d.parentMap[c] = n.ID
		}
	}
	if len(st.Nodes) == 0 {
		return
	}
	if parentID == "" {
		delete(d.parentMap, st.RootID())
		return
	}
	d.parentMap[st.RootID()] = parentID
}

// removeSubtree deletes rootID and every descendant from the working
// copy, returning the flattened Subtree that was removed. It does not
// touch any parent's Content list.
func (d *Draft) removeSubtree(rootID ids.NodeId) (patch.Subtree, error) {
	get := func(id ids.NodeId) (model.Node, []ids.NodeId, bool) {
		n, ok := d.nodes[id]
		return n, n.Content, ok
	}
	flat, ok := patch.Flatten[model.Node](rootID, get)
	if !ok {
		return patch.Subtree{}, &Error{Kind: NodeNotFound, NodeID: rootID}
	}
	for _, n := range flat {
		delete(d.nodes, n.ID)
		delete(d.parentMap, n.ID)
	}
	return patch.Subtree{Nodes: flat}, nil
}

// AddNode inserts subtrees at the end of parentID's content, in the
// order given, registering every inserted node's own subtree into the
// working copy (spec.md §4.4 add_node). Fails ParentNotFound.
func (d *Draft) AddNode(parentID ids.NodeId, subtrees []patch.Subtree) error {
	parent, ok := d.nodes[parentID]
	if !ok {
		return &Error{Kind: ParentNotFound, NodeID: parentID}
	}

	position := len(parent.Content)
	insertedIDs := make([]ids.NodeId, 0, len(subtrees))
	for _, st := range subtrees {
		d.registerSubtree(st, parentID)
		insertedIDs = append(insertedIDs, st.RootID())
	}
	newContent := append(append([]ids.NodeId{}, parent.Content...), insertedIDs...)
	d.nodes[parentID] = parent.WithContent(newContent)

	d.record(patch.Patch{
		Kind:     patch.AddNode,
		Path:     d.snapshotPath(),
		ParentID: parentID,
		Subtrees: subtrees,
		Position: position,
	})
	return nil
}

// RemoveNode removes removeIDs from parentID's content, deleting their
// subtrees recursively (spec.md §4.4 remove_node). Fails
// ParentNotFound if the parent is missing, InvalidParenting if any id
// is not a direct child, CannotRemoveRoot if the pool root is among
// them.
//
// removeIDs need not be contiguous within parent's content, but the
// recorded patch's Position is the smallest index among removeIDs
// before removal: replaying the patch assumes a contiguous run, in
// removeIDs order, starting there. That is exact for a single id or a
// contiguous range listed in content order; for any other removal the
// reversed patch does not restore the original sibling order.
func (d *Draft) RemoveNode(parentID ids.NodeId, removeIDs []ids.NodeId) error {
	parent, ok := d.nodes[parentID]
	if !ok {
		return &Error{Kind: ParentNotFound, NodeID: parentID}
	}

	firstPosition := -1
	removeSet := make(map[ids.NodeId]bool, len(removeIDs))
	for _, id := range removeIDs {
		idx := parent.ChildIndex(id)
		if idx == -1 {
			return &Error{Kind: InvalidParenting, NodeID: id}
		}
		if id == d.rootID {
			return &Error{Kind: CannotRemoveRoot, NodeID: id}
		}
		if firstPosition == -1 || idx < firstPosition {
			firstPosition = idx
		}
		removeSet[id] = true
	}

	subtrees := make([]patch.Subtree, 0, len(removeIDs))
	for _, id := range removeIDs {
		st, err := d.removeSubtree(id)
		if err != nil {
			return err
		}
		subtrees = append(subtrees, st)
	}

	newContent := make([]ids.NodeId, 0, len(parent.Content))
	for _, c := range parent.Content {
		if !removeSet[c] {
			newContent = append(newContent, c)
		}
	}
	d.nodes[parentID] = parent.WithContent(newContent)

	d.record(patch.Patch{
		Kind:     patch.RemoveNode,
		Path:     d.snapshotPath(),
		ParentID: parentID,
		Subtrees: subtrees,
		Position: firstPosition,
	})
	return nil
}

// ReplaceNode requires newSubtrees[0]'s root id to equal id; it
// removes id's existing subtree then inserts the new subtrees at the
// same position (spec.md §4.4 replace_node). Fails NodeNotFound if id
// is absent, InvalidNodeId if the id constraint is violated.
func (d *Draft) ReplaceNode(id ids.NodeId, newSubtrees []patch.Subtree) error {
	if _, ok := d.nodes[id]; !ok {
		return &Error{Kind: NodeNotFound, NodeID: id}
	}
	if len(newSubtrees) == 0 || newSubtrees[0].RootID() != id {
		return &Error{Kind: InvalidNodeId, NodeID: id}
	}
	if id == d.rootID && len(newSubtrees) != 1 {
		return &Error{Kind: InvalidNodeId, NodeID: id}
	}

	parentID, hasParent := d.parentMap[id]
	position := -1
	if hasParent {
		position = d.nodes[parentID].ChildIndex(id)
	}

	removed, err := d.removeSubtree(id)
	if err != nil {
		return err
	}

	newIDs := make([]ids.NodeId, 0, len(newSubtrees))
	for _, st := range newSubtrees {
		if hasParent {
			d.registerSubtree(st, parentID)
		} else {
			d.registerSubtree(st, "")
		}
		newIDs = append(newIDs, st.RootID())
	}

	if hasParent {
		parent := d.nodes[parentID]
		newContent := make([]ids.NodeId, 0, len(parent.Content)-1+len(newIDs))
		newContent = append(newContent, parent.Content[:position]...)
		newContent = append(newContent, newIDs...)
		newContent = append(newContent, parent.Content[position+1:]...)
		d.nodes[parentID] = parent.WithContent(newContent)
	}

	d.record(patch.Patch{
		Kind:     patch.RemoveNode,
		Path:     d.snapshotPath(),
		ParentID: parentID,
		Subtrees: []patch.Subtree{removed},
		Position: position,
	})
	d.record(patch.Patch{
		Kind:     patch.AddNode,
		Path:     d.snapshotPath(),
		ParentID: parentID,
		Subtrees: newSubtrees,
		Position: position,
	})
	return nil
}

// AddMark appends marks to id's mark set by structural equality
// (spec.md §4.4 add_mark). A mark already present on the node is
// rejected with the draft-level MarkAlreadyPresent error and nothing
// is applied; step.AddMarkStep maps that error to its own
// DuplicateMark kind (spec.md §4.5).
func (d *Draft) AddMark(id ids.NodeId, marks []model.Mark) error {
	n, ok := d.nodes[id]
	if !ok {
		return &Error{Kind: NodeNotFound, NodeID: id}
	}
	ms := n.Marks
	for _, m := range marks {
		next, added := ms.Add(m)
		if !added {
			return &Error{Kind: MarkAlreadyPresent, NodeID: id}
		}
		ms = next
	}
	d.nodes[id] = n.WithMarks(ms)
	d.record(patch.Patch{Kind: patch.AddMark, Path: d.snapshotPath(), MarkNodeID: id, Marks: marks})
	return nil
}

// RemoveMark removes a mark from id's mark set by structural equality
// (spec.md §4.4 remove_mark). Fails MarkNotFound if absent.
func (d *Draft) RemoveMark(id ids.NodeId, mark model.Mark) error {
	n, ok := d.nodes[id]
	if !ok {
		return &Error{Kind: NodeNotFound, NodeID: id}
	}
	next, removed := n.Marks.Remove(mark)
	if !removed {
		return &Error{Kind: MarkNotFound, NodeID: id}
	}
	d.nodes[id] = n.WithMarks(next)
	d.record(patch.Patch{Kind: patch.RemoveMark, Path: d.snapshotPath(), MarkNodeID: id, Marks: []model.Mark{mark}})
	return nil
}

// MoveNode atomically detaches nodeID from sourceParentID and inserts
// it into targetParentID at position (or at the end, if position is
// nil). Fails InvalidParenting if nodeID is not a direct child of
// sourceParentID (spec.md §4.4 move_node).
func (d *Draft) MoveNode(sourceParentID, targetParentID, nodeID ids.NodeId, position *int) error {
	source, ok := d.nodes[sourceParentID]
	if !ok {
		return &Error{Kind: ParentNotFound, NodeID: sourceParentID}
	}
	srcIdx := source.ChildIndex(nodeID)
	if srcIdx == -1 {
		return &Error{Kind: InvalidParenting, NodeID: nodeID}
	}
	if _, ok := d.nodes[targetParentID]; !ok {
		return &Error{Kind: ParentNotFound, NodeID: targetParentID}
	}

	newSourceContent := make([]ids.NodeId, 0, len(source.Content)-1)
	newSourceContent = append(newSourceContent, source.Content[:srcIdx]...)
	newSourceContent = append(newSourceContent, source.Content[srcIdx+1:]...)
	d.nodes[sourceParentID] = source.WithContent(newSourceContent)

	target := d.nodes[targetParentID]
	targetIdx := len(target.Content)
	if position != nil {
		targetIdx = *position
		if targetIdx > len(target.Content) {
			targetIdx = len(target.Content)
		}
		if targetIdx < 0 {
			targetIdx = 0
		}
	}
	newTargetContent := make([]ids.NodeId, 0, len(target.Content)+1)
	newTargetContent = append(newTargetContent, target.Content[:targetIdx]...)
	newTargetContent = append(newTargetContent, nodeID)
	newTargetContent = append(newTargetContent, target.Content[targetIdx:]...)
	d.nodes[targetParentID] = target.WithContent(newTargetContent)

	d.parentMap[nodeID] = targetParentID

	d.record(patch.Patch{
		Kind:           patch.MoveNode,
		Path:           d.snapshotPath(),
		SourceParent:   sourceParentID,
		TargetParent:   targetParentID,
		MovedNodeID:    nodeID,
		SourcePosition: srcIdx,
		TargetPosition: targetIdx,
	})
	return nil
}

// SortChildren reorders parentID's content with less as a total order
// comparator over child ids, recording the old and new order (spec.md
// §4.4 sort_children). Fails ParentNotFound.
func (d *Draft) SortChildren(parentID ids.NodeId, less func(a, b ids.NodeId) bool) error {
	parent, ok := d.nodes[parentID]
	if !ok {
		return &Error{Kind: ParentNotFound, NodeID: parentID}
	}
	oldOrder := append([]ids.NodeId{}, parent.Content...)
	newOrder := append([]ids.NodeId{}, parent.Content...)
	sort.SliceStable(newOrder, func(i, j int) bool { return less(newOrder[i], newOrder[j]) })
	d.nodes[parentID] = parent.WithContent(newOrder)
	d.record(patch.Patch{
		Kind:         patch.SortChildren,
		Path:         d.snapshotPath(),
		SortParentID: parentID,
		OldOrder:     oldOrder,
		NewOrder:     newOrder,
	})
	return nil
}

// ApplyPatches replays ps against the working copy without recording
// new patches (spec.md §4.4 apply_patches): used by step composition
// and by the undo engine.
func (d *Draft) ApplyPatches(ps []patch.Patch) error {
	prev := d.skipRecord
	d.skipRecord = true
	defer func() { d.skipRecord = prev }()
	for _, p := range ps {
		if err := d.applyOne(p); err != nil {
			return err
		}
	}
	return nil
}

// ReversePatches inverts ps and replays the inverse, without recording
// (spec.md §4.4 reverse_patches): used by the undo engine to restore a
// prior state from a forward patch list.
func (d *Draft) ReversePatches(ps []patch.Patch) error {
	return d.ApplyPatches(patch.Reverse(ps))
}

func (d *Draft) applyOne(p patch.Patch) error {
	switch p.Kind {
	case patch.UpdateAttr:
		n, ok := d.nodes[p.NodeID]
		if !ok {
			return &Error{Kind: NodeNotFound, NodeID: p.NodeID}
		}
		d.nodes[p.NodeID] = n.WithAttrs(p.NewAttrs)
		return nil

	case patch.AddNode:
		insertedIDs := make([]ids.NodeId, 0, len(p.Subtrees))
		for _, st := range p.Subtrees {
			d.registerSubtree(st, p.ParentID)
			insertedIDs = append(insertedIDs, st.RootID())
		}
		if p.ParentID == "" {
			return nil
		}
		parent, ok := d.nodes[p.ParentID]
		if !ok {
			return &Error{Kind: ParentNotFound, NodeID: p.ParentID}
		}
		pos := p.Position
		if pos < 0 || pos > len(parent.Content) {
			pos = len(parent.Content)
		}
		newContent := make([]ids.NodeId, 0, len(parent.Content)+len(insertedIDs))
		newContent = append(newContent, parent.Content[:pos]...)
		newContent = append(newContent, insertedIDs...)
		newContent = append(newContent, parent.Content[pos:]...)
		d.nodes[p.ParentID] = parent.WithContent(newContent)
		return nil

	case patch.RemoveNode:
		removeSet := make(map[ids.NodeId]bool, len(p.Subtrees))
		for _, st := range p.Subtrees {
			for _, n := range st.Nodes {
				delete(d.nodes, n.ID)
				delete(d.parentMap, n.ID)
			}
			removeSet[st.RootID()] = true
		}
		if p.ParentID == "" {
			return nil
		}
		parent, ok := d.nodes[p.ParentID]
		if !ok {
			return &Error{Kind: ParentNotFound, NodeID: p.ParentID}
		}
		newContent := make([]ids.NodeId, 0, len(parent.Content))
		for _, c := range parent.Content {
			if !removeSet[c] {
				newContent = append(newContent, c)
			}
		}
		d.nodes[p.ParentID] = parent.WithContent(newContent)
		return nil

	case patch.AddMark:
		n, ok := d.nodes[p.MarkNodeID]
		if !ok {
			return &Error{Kind: NodeNotFound, NodeID: p.MarkNodeID}
		}
		ms := n.Marks
		for _, m := range p.Marks {
			if next, added := ms.Add(m); added {
				ms = next
			}
		}
		d.nodes[p.MarkNodeID] = n.WithMarks(ms)
		return nil

	case patch.RemoveMark:
		n, ok := d.nodes[p.MarkNodeID]
		if !ok {
			return &Error{Kind: NodeNotFound, NodeID: p.MarkNodeID}
		}
		ms := n.Marks
		for _, m := range p.Marks {
			if next, removed := ms.Remove(m); removed {
				ms = next
			}
		}
		d.nodes[p.MarkNodeID] = n.WithMarks(ms)
		return nil

	case patch.MoveNode:
		return d.applyMove(p)

	case patch.SortChildren:
		parent, ok := d.nodes[p.SortParentID]
		if !ok {
			return &Error{Kind: ParentNotFound, NodeID: p.SortParentID}
		}
		d.nodes[p.SortParentID] = parent.WithContent(append([]ids.NodeId{}, p.NewOrder...))
		return nil

	default:
		return nil
	}
}

func (d *Draft) applyMove(p patch.Patch) error {
	source, ok := d.nodes[p.SourceParent]
	if !ok {
		return &Error{Kind: ParentNotFound, NodeID: p.SourceParent}
	}
	idx := source.ChildIndex(p.MovedNodeID)
	if idx != -1 {
		newSourceContent := make([]ids.NodeId, 0, len(source.Content)-1)
		newSourceContent = append(newSourceContent, source.Content[:idx]...)
		newSourceContent = append(newSourceContent, source.Content[idx+1:]...)
		d.nodes[p.SourceParent] = source.WithContent(newSourceContent)
	}

	target, ok := d.nodes[p.TargetParent]
	if !ok {
		return &Error{Kind: ParentNotFound, NodeID: p.TargetParent}
	}
	pos := p.TargetPosition
	if pos < 0 || pos > len(target.Content) {
		pos = len(target.Content)
	}
	newTargetContent := make([]ids.NodeId, 0, len(target.Content)+1)
	newTargetContent = append(newTargetContent, target.Content[:pos]...)
	newTargetContent = append(newTargetContent, p.MovedNodeID)
	newTargetContent = append(newTargetContent, target.Content[pos:]...)
	d.nodes[p.TargetParent] = target.WithContent(newTargetContent)
	d.parentMap[p.MovedNodeID] = p.TargetParent
	return nil
}

// Commit builds a new Pool from the working copy, returning it
// alongside the accumulated patches (spec.md §4.4 commit). The pool
// construction itself re-validates pool integrity (no dangling
// children, no two-parent nodes, acyclic), surfacing any violation the
// recorded mutations introduced.
func (d *Draft) Commit() (*model.Pool, []patch.Patch, error) {
	pool, err := model.NewPool(d.nodes, d.rootID)
	if err != nil {
		slog.Warn("draft: commit produced an invalid pool", "error", err, "patch_count", len(d.patches))
		return nil, nil, err
	}
	slog.Debug("draft: committed", "patch_count", len(d.patches))
	return pool, d.patches, nil
}
