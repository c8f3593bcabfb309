package step

import (
	"fmt"

	"github.com/moduforge-go/core/pkg/draft"
)

// ErrorKind classifies a step application failure (spec.md §4.5).
type ErrorKind int

const (
	NodeMissing ErrorKind = iota
	ParentMissing
	InvalidParent
	SchemaViolation
	DuplicateMark
	CannotRemoveRoot
	CustomStep
)

func (k ErrorKind) String() string {
	switch k {
	case NodeMissing:
		return "NodeMissing"
	case ParentMissing:
		return "ParentMissing"
	case InvalidParent:
		return "InvalidParent"
	case SchemaViolation:
		return "SchemaViolation"
	case DuplicateMark:
		return "DuplicateMark"
	case CannotRemoveRoot:
		return "CannotRemoveRoot"
	case CustomStep:
		return "CustomStep"
	default:
		return "Unknown"
	}
}

// Error is the error type every Step.Apply returns on failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("step: %s", e.Kind)
	}
	return fmt.Sprintf("step: %s: %s", e.Kind, e.Message)
}

func custom(message string) *Error {
	return &Error{Kind: CustomStep, Message: message}
}

// fromDraftErr maps a draft.Error onto the step-level taxonomy. A step
// is expected to validate duplicate marks itself before ever calling
// into the draft, but draft.MarkAlreadyPresent is mapped defensively
// in case a caller skips that check.
func fromDraftErr(err error) error {
	de, ok := err.(*draft.Error)
	if !ok {
		return err
	}
	switch de.Kind {
	case draft.NodeNotFound:
		return &Error{Kind: NodeMissing, Message: string(de.NodeID)}
	case draft.ParentNotFound:
		return &Error{Kind: ParentMissing, Message: string(de.NodeID)}
	case draft.InvalidParenting:
		return &Error{Kind: InvalidParent, Message: string(de.NodeID)}
	case draft.CannotRemoveRoot:
		return &Error{Kind: CannotRemoveRoot, Message: string(de.NodeID)}
	case draft.MarkAlreadyPresent:
		return &Error{Kind: DuplicateMark, Message: string(de.NodeID)}
	default:
		return custom(de.Error())
	}
}
