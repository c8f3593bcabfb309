package state

import (
	"context"

	"github.com/moduforge-go/core/pkg/transaction"
)

// Key identifies a Plugin uniquely within a Configuration: ID must be
// unique, Name is a human-readable label surfaced in diagnostics
// (spec.md §3 Plugin.key).
type Key struct {
	ID   string
	Name string
}

// Resource is the opaque per-plugin value a StateField produces and
// updates. The core treats it as an immutable-by-convention payload:
// StateField.Apply must return a new value rather than mutating the
// one it was given (spec.md §5 "Resources stored in the State's
// resource map must be treated as immutable by convention").
type Resource = any

// StateField is a plugin's per-State resource capability (spec.md §3
// StateField): it initializes a Resource when a State is created or a
// Configuration reconfigured, and derives a new Resource from every
// transaction applied against the plugin's own previous Resource plus
// the old and new State.
type StateField interface {
	Init(ctx context.Context, config *Configuration, st *State) (Resource, error)
	Apply(ctx context.Context, tr *transaction.Transaction, old Resource, oldState, newState *State) (Resource, error)
	Serialize(Resource) ([]byte, error)
	Deserialize([]byte) (Resource, error)
}

// FilterFunc is a plugin's optional filter hook: given a candidate
// transaction and the state it would apply against, it returns false
// to reject the transaction outright (spec.md §4.7.2). Filter may rely
// on st.Pool() (the pre-image), never a post-image.
type FilterFunc func(ctx context.Context, tr *transaction.Transaction, st *State) (bool, error)

// AppendTransactionFunc is a plugin's optional append-transaction hook
// (spec.md §4.7.3): given the slice of transactions it has not yet
// seen, the state as of just before the first of them, and the
// current (post-apply) state, it may return one follow-up transaction
// to fold into the fixed-point loop.
type AppendTransactionFunc func(ctx context.Context, trs []*transaction.Transaction, oldState, newState *State) (*transaction.Transaction, error)

// Plugin is a unit of extension: a unique key, an execution priority,
// and optional filter/append-transaction hooks and state field
// (spec.md §3 Plugin, §4.7.1). Lower Priority runs first; ties are
// broken by registration order in the Configuration's plugin list.
type Plugin struct {
	Key               Key
	Priority          int32
	StateField        StateField
	Filter            FilterFunc
	AppendTransaction AppendTransactionFunc
}
