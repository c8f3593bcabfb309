package state

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
	"github.com/moduforge-go/core/pkg/obs"
	"github.com/moduforge-go/core/pkg/schema"
)

// defaultSchemaVersion is used when a Configuration doesn't specify
// one explicitly; it satisfies semver.NewVersion unconditionally.
const defaultSchemaVersion = "0.1.0"

// Configuration is the construction-time, immutable description of a
// document's schema and plugin pipeline (spec.md §3 "config:
// Arc<Configuration>"). Plugins are stored pre-sorted into execution
// order (spec.md §4.7.1: ascending priority, ties by insertion order).
type Configuration struct {
	Schema        *schema.Schema
	SchemaVersion *semver.Version
	InitialPool   *model.Pool // optional; if nil, State.Create instantiates the top node type
	IDAllocator   ids.Allocator
	Observability *obs.Provider // optional; nil means uninstrumented

	plugins []*Plugin
}

// NewConfiguration compiles a Configuration from sc, plugins (in
// registration order) and an optional semver schema version string
// (empty defaults to "0.1.0"). It rejects a duplicate plugin key id
// with a deterministic error (spec.md §6 "Plugin registration":
// "Duplicate id rejects schema construction").
func NewConfiguration(sc *schema.Schema, plugins []*Plugin, schemaVersion string) (*Configuration, error) {
	if schemaVersion == "" {
		schemaVersion = defaultSchemaVersion
	}
	v, err := semver.NewVersion(schemaVersion)
	if err != nil {
		return nil, fmt.Errorf("state: invalid schema version %q: %w", schemaVersion, err)
	}

	seen := make(map[string]bool, len(plugins))
	for _, p := range plugins {
		if seen[p.Key.ID] {
			return nil, fmt.Errorf("state: duplicate plugin id %q", p.Key.ID)
		}
		seen[p.Key.ID] = true
	}

	sorted := make([]*Plugin, len(plugins))
	copy(sorted, plugins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &Configuration{
		Schema:        sc,
		SchemaVersion: v,
		IDAllocator:   ids.NewMonotonicAllocator(),
		plugins:       sorted,
	}, nil
}

// Plugins returns the configuration's plugins in execution order.
// Callers must not mutate the returned slice.
func (c *Configuration) Plugins() []*Plugin { return c.plugins }

// Plugin looks up a plugin by key id.
func (c *Configuration) Plugin(id string) (*Plugin, bool) {
	for _, p := range c.plugins {
		if p.Key.ID == id {
			return p, true
		}
	}
	return nil, false
}
