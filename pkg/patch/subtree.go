package patch

import "github.com/moduforge-go/core/pkg/ids"

// Flatten walks root and its descendants (via get) in pre-order,
// producing the Subtree payload a patch carries. get must return a
// node's id list of children; Flatten does not care about any other
// field.
func Flatten[T any](rootID ids.NodeId, get func(ids.NodeId) (T, []ids.NodeId, bool)) ([]T, bool) {
	root, children, ok := get(rootID)
	if !ok {
		return nil, false
	}
	out := []T{root}
	for _, c := range children {
		sub, ok := Flatten(c, get)
		if !ok {
			return nil, false
		}
		out = append(out, sub...)
	}
	return out, true
}
