// Package step implements the atomic, invertible document mutations a
// Transaction accumulates (spec.md §4.5): AddNodeStep, RemoveNodeStep,
// AttrStep, AddMarkStep and RemoveMarkStep, plus a name-keyed registry
// so a step log can be serialized and read back without the reader
// knowing every concrete type up front.
package step

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/moduforge-go/core/pkg/codec"
	"github.com/moduforge-go/core/pkg/draft"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/schema"
)

// Step is a single document mutation: applying it to a Draft records
// the equivalent patches, and Invert produces the step that undoes it
// against the pool the step was originally applied to.
type Step interface {
	Name() string
	Apply(d *draft.Draft, sc *schema.Schema) error
	Invert(pool *model.Pool) Step
}

// As downcasts s to a concrete step type, the way a caller that
// received a Step from a transaction log inspects what kind it is
// without a type switch at every call site.
func As[T Step](s Step) (T, bool) {
	t, ok := s.(T)
	return t, ok
}

// validateContent checks parentID's current child-type sequence
// against the schema's compiled content matcher, raising
// SchemaViolation if the parent's type has no matcher or the sequence
// isn't accepted to a valid end state.
func validateContent(d *draft.Draft, sc *schema.Schema, parentID ids.NodeId) error {
	parent, ok := d.Node(parentID)
	if !ok {
		return nil
	}
	cm, ok := sc.ContentMatch(parent.Type)
	if !ok {
		return &Error{Kind: SchemaViolation, Message: fmt.Sprintf("no content rule for node type %q", parent.Type)}
	}
	types := make([]string, len(parent.Content))
	for i, id := range parent.Content {
		child, ok := d.Node(id)
		if !ok {
			return &Error{Kind: SchemaViolation, Message: fmt.Sprintf("missing child %q", id)}
		}
		types[i] = child.Type
	}
	end, ok := cm.MatchFragment(types)
	if !ok || !end.ValidEnd() {
		return &Error{Kind: SchemaViolation, Message: fmt.Sprintf("content of %q does not match its schema rule", parentID)}
	}
	return nil
}

// multiStep composes several steps into one atomic unit, used by
// RemoveNodeStep.Invert when the removed ids spanned more than one
// original parent.
type multiStep struct {
	steps []Step
}

func (m multiStep) Name() string { return "multi" }

func (m multiStep) Apply(d *draft.Draft, sc *schema.Schema) error {
	for _, s := range m.steps {
		if err := s.Apply(d, sc); err != nil {
			return err
		}
	}
	return nil
}

func (m multiStep) Invert(pool *model.Pool) Step {
	inv := make([]Step, len(m.steps))
	for i, s := range m.steps {
		inv[len(m.steps)-1-i] = s.Invert(pool)
	}
	return multiStep{steps: inv}
}

// envelope is the wire shape a Registry serializes every step to:
// canonical JSON of {"type": name, "data": <step-specific payload>}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Factory builds a Step from its serialized payload.
type Factory func(data []byte) (Step, error)

// Registry maps step type names to factories, so a transaction log
// reader can reconstruct concrete steps without a priori knowledge of
// which ones appear in it.
type Registry struct {
	mu      sync.RWMutex
	factory map[string]Factory
}

// NewRegistry builds a Registry pre-populated with the five built-in
// step types.
func NewRegistry() *Registry {
	r := &Registry{factory: make(map[string]Factory)}
	r.Register("add_node", func(data []byte) (Step, error) {
		var s AddNodeStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	r.Register("remove_node", func(data []byte) (Step, error) {
		var s RemoveNodeStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	r.Register("attr", func(data []byte) (Step, error) {
		var s AttrStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	r.Register("add_mark", func(data []byte) (Step, error) {
		var s AddMarkStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	r.Register("remove_mark", func(data []byte) (Step, error) {
		var s RemoveMarkStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	return r
}

// Register adds or replaces the factory for a custom step type name,
// so a CustomStep implementation (spec.md §4.5 custom_step) can
// participate in serialization alongside the built-ins.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory[name] = f
}

// Serialize writes s as a canonical-JSON envelope naming s.Name().
func (r *Registry) Serialize(s Step) ([]byte, error) {
	data, err := codec.Canonical(s)
	if err != nil {
		return nil, err
	}
	return codec.Canonical(envelope{Type: s.Name(), Data: data})
}

// Deserialize reads back a step written by Serialize, dispatching on
// its envelope's type name.
func (r *Registry) Deserialize(raw []byte) (Step, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.factory[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, custom(fmt.Sprintf("no registered step type %q", env.Type))
	}
	return f(env.Data)
}

func sortedKeys(m map[string]model.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
