package draft

import (
	"fmt"

	"github.com/moduforge-go/core/pkg/ids"
)

// ErrorKind classifies a draft operation failure. The first five
// values are the NodeError variants of spec.md §7; MarkAlreadyPresent
// and MarkNotFound are draft-local, since the spec reserves
// DuplicateMark as a step-level error (spec.md §4.5) raised before a
// step ever calls into the draft.
type ErrorKind int

const (
	NodeNotFound ErrorKind = iota
	ParentNotFound
	InvalidParenting
	CannotRemoveRoot
	InvalidNodeId
	MarkAlreadyPresent
	MarkNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case NodeNotFound:
		return "NodeNotFound"
	case ParentNotFound:
		return "ParentNotFound"
	case InvalidParenting:
		return "InvalidParenting"
	case CannotRemoveRoot:
		return "CannotRemoveRoot"
	case InvalidNodeId:
		return "InvalidNodeId"
	case MarkAlreadyPresent:
		return "MarkAlreadyPresent"
	case MarkNotFound:
		return "MarkNotFound"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every Draft operation.
type Error struct {
	Kind   ErrorKind
	NodeID ids.NodeId
}

func (e *Error) Error() string {
	return fmt.Sprintf("draft: %s: %s", e.Kind, e.NodeID)
}
