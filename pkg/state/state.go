package state

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/schema"
	"github.com/moduforge-go/core/pkg/transaction"
)

// globalVersion is the process-wide monotonically increasing counter
// State.version is drawn from (spec.md §3 State "Versions are drawn
// from a process-global monotonically increasing counter", §6
// "Version scalar": "monotone but may skip values").
var globalVersion uint64

func nextVersion() uint64 {
	return atomic.AddUint64(&globalVersion, 1)
}

// State is the top-level published value: configuration, pool,
// per-plugin resources, and version (spec.md §3 State). States are
// immutable once published (spec.md §5); every mutation produces a
// new State sharing the old one's Configuration.
type State struct {
	config    *Configuration
	resources map[string]Resource
	pool      *model.Pool
	version   uint64
}

// Config returns the state's configuration.
func (s *State) Config() *Configuration { return s.config }

// Pool returns the state's current document pool.
func (s *State) Pool() *model.Pool { return s.pool }

// Version returns the state's version scalar.
func (s *State) Version() uint64 { return s.version }

// Resource returns the resource stored for pluginID, if any.
func (s *State) Resource(pluginID string) (Resource, bool) {
	r, ok := s.resources[pluginID]
	return r, ok
}

// Create builds a State from config (spec.md §6 "Document
// construction"). If config.InitialPool is set, it is used directly;
// otherwise Create instantiates the schema's top node type, using
// ContentMatch.Fill to populate mandatory children, and fails if Fill
// cannot produce a valid sequence for the top node type's content
// (spec.md §6: "When fill returns None for the top node type's
// content, State creation fails").
func Create(ctx context.Context, config *Configuration) (*State, error) {
	pool := config.InitialPool
	if pool == nil {
		built, err := instantiateTopNode(config.Schema, config.IDAllocator)
		if err != nil {
			return nil, fmt.Errorf("state: create: %w", err)
		}
		pool = built
	}

	s := &State{
		config:    config,
		resources: make(map[string]Resource, len(config.Plugins())),
		pool:      pool,
		version:   nextVersion(),
	}

	for _, p := range config.Plugins() {
		if p.StateField == nil {
			continue
		}
		r, err := p.StateField.Init(ctx, config, s)
		if err != nil {
			return nil, fmt.Errorf("state: create: plugin %q init: %w", p.Key.ID, err)
		}
		s.resources[p.Key.ID] = r
	}
	return s, nil
}

// Tr opens a fresh Transaction over the state's current pool (spec.md
// §2 data flow: "A caller obtains a fresh Transaction from
// State::tr()").
func (s *State) Tr() *transaction.Transaction {
	return transaction.New(s.pool, s.config.Schema, transaction.NextID())
}

// Reconfigure produces a new State with the current pool but a
// (possibly) different plugin list (spec.md §4.7.5). For each plugin
// in newConfig, a resource carried over from the old state if one
// exists for the same key id, otherwise field.Init is invoked. Plugins
// absent from newConfig have their resources dropped.
func (s *State) Reconfigure(ctx context.Context, newConfig *Configuration) (*State, error) {
	next := &State{
		config:    newConfig,
		resources: make(map[string]Resource, len(newConfig.Plugins())),
		pool:      s.pool,
		version:   nextVersion(),
	}
	for _, p := range newConfig.Plugins() {
		if p.StateField == nil {
			continue
		}
		if old, ok := s.resources[p.Key.ID]; ok {
			next.resources[p.Key.ID] = old
			continue
		}
		r, err := p.StateField.Init(ctx, newConfig, next)
		if err != nil {
			return nil, fmt.Errorf("state: reconfigure: plugin %q init: %w", p.Key.ID, err)
		}
		next.resources[p.Key.ID] = r
	}
	return next, nil
}

func instantiateTopNode(sc *schema.Schema, alloc ids.Allocator) (*model.Pool, error) {
	topType, ok := sc.TopNodeType()
	if !ok {
		return nil, fmt.Errorf("schema has no top node type configured")
	}
	nodes := make(map[ids.NodeId]model.Node)
	rootID, err := buildSubtree(sc, alloc, topType, nodes)
	if err != nil {
		return nil, err
	}
	return model.NewPool(nodes, rootID)
}

// buildSubtree instantiates one node of nodeType plus whatever
// mandatory children its content expression requires, recursively,
// via ContentMatch.Fill (spec.md §6 "Document construction").
func buildSubtree(sc *schema.Schema, alloc ids.Allocator, nodeType string, nodes map[ids.NodeId]model.Node) (ids.NodeId, error) {
	spec, ok := sc.NodeType(nodeType)
	if !ok {
		return "", fmt.Errorf("undeclared node type %q", nodeType)
	}
	attrs, err := defaultAttrs(spec)
	if err != nil {
		return "", err
	}

	var childTypes []string
	if cm, ok := sc.ContentMatch(nodeType); ok {
		filled, ok := cm.Fill(nil, true, sc)
		if !ok {
			return "", fmt.Errorf("no fill satisfies content rule for node type %q", nodeType)
		}
		childTypes = filled
	}

	childIDs := make([]ids.NodeId, 0, len(childTypes))
	for _, ct := range childTypes {
		cid, err := buildSubtree(sc, alloc, ct, nodes)
		if err != nil {
			return "", err
		}
		childIDs = append(childIDs, cid)
	}

	id := alloc.Next()
	nodes[id] = model.New(id, nodeType, attrs).WithContent(childIDs)
	return id, nil
}

// defaultAttrs builds the Attrs a freshly synthesized node of spec
// starts with: every declared attribute with a default gets it, in
// sorted key order for determinism; a required attribute with no
// default makes the node type impossible to synthesize.
func defaultAttrs(spec schema.NodeTypeSpec) (model.Attrs, error) {
	names := make([]string, 0, len(spec.Attrs))
	for name := range spec.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := model.NewAttrs()
	for _, name := range names {
		as := spec.Attrs[name]
		if as.Required && !as.HasDefault {
			return model.Attrs{}, fmt.Errorf("node type %q has required attribute %q with no default", spec.Name, name)
		}
		if as.HasDefault {
			attrs = attrs.Set(name, as.Default)
		}
	}
	return attrs, nil
}
