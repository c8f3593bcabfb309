package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/moduforge-go/core/pkg/codec"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/moduforge-go/core/pkg/model"
)

// poolSnapshot is the JSON shape State.Serialize writes for the pool
// byte stream (spec.md §6 "State snapshotting"). SchemaVersion travels
// alongside the nodes so Deserialize can refuse an incompatible major
// version before ever touching plugin resources (SPEC_FULL.md DOMAIN
// STACK item 6).
type poolSnapshot struct {
	SchemaVersion string       `json:"schema_version"`
	RootID        ids.NodeId   `json:"root_id"`
	Nodes         []model.Node `json:"nodes"`
}

// resourceRecord is one plugin's serialized resource, prefixed by its
// plugin id (spec.md §6: "each prefixed by plugin id").
type resourceRecord struct {
	PluginID string `json:"plugin_id"`
	Data     []byte `json:"data"`
}

// Serialize writes the state's pool and per-plugin resources as two
// independent canonical-JSON byte streams (spec.md §6 "State
// snapshotting").
func (s *State) Serialize() (poolBytes []byte, resourceBytes []byte, err error) {
	nodeIDs := s.pool.NodeIDs()
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
	nodes := make([]model.Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		n, _ := s.pool.Node(id)
		nodes = append(nodes, n)
	}

	snap := poolSnapshot{
		SchemaVersion: s.config.SchemaVersion.String(),
		RootID:        s.pool.RootID(),
		Nodes:         nodes,
	}
	poolBytes, err = codec.Canonical(snap)
	if err != nil {
		return nil, nil, &SerializationError{Reason: "encode pool", Err: err}
	}

	records := make([]resourceRecord, 0, len(s.resources))
	for _, p := range s.config.Plugins() {
		if p.StateField == nil {
			continue
		}
		r, ok := s.resources[p.Key.ID]
		if !ok {
			continue
		}
		data, err := p.StateField.Serialize(r)
		if err != nil {
			return nil, nil, &SerializationError{Reason: fmt.Sprintf("encode resource %q", p.Key.ID), Err: err}
		}
		records = append(records, resourceRecord{PluginID: p.Key.ID, Data: data})
	}
	resourceBytes, err = codec.Canonical(records)
	if err != nil {
		return nil, nil, &SerializationError{Reason: "encode resources", Err: err}
	}
	return poolBytes, resourceBytes, nil
}

// Deserialize reconstructs a State from bytes written by Serialize
// against config. A schema version whose major component differs from
// config.SchemaVersion is rejected (spec.md §6 "reconstructs a State
// against a compatible configuration"). A plugin present in config but
// missing from the resource stream has its resource produced via
// field.Init instead (spec.md §6 "missing plugin-resource blobs are
// filled via field.init").
func Deserialize(ctx context.Context, poolBytes, resourceBytes []byte, config *Configuration) (*State, error) {
	var snap poolSnapshot
	if err := json.Unmarshal(poolBytes, &snap); err != nil {
		return nil, &SerializationError{Reason: "decode pool", Err: err}
	}

	producerVersion, err := semver.NewVersion(snap.SchemaVersion)
	if err != nil {
		return nil, &SerializationError{Reason: "decode pool: invalid schema_version", Err: err}
	}
	if producerVersion.Major() != config.SchemaVersion.Major() {
		return nil, &SerializationError{Reason: fmt.Sprintf(
			"schema version %s incompatible with configuration version %s",
			producerVersion, config.SchemaVersion,
		)}
	}

	nodeMap := make(map[ids.NodeId]model.Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		nodeMap[n.ID] = n
	}
	pool, err := model.NewPool(nodeMap, snap.RootID)
	if err != nil {
		return nil, &SerializationError{Reason: "decode pool: invalid pool", Err: err}
	}

	var records []resourceRecord
	if len(resourceBytes) > 0 {
		if err := json.Unmarshal(resourceBytes, &records); err != nil {
			return nil, &SerializationError{Reason: "decode resources", Err: err}
		}
	}
	blobs := make(map[string][]byte, len(records))
	for _, r := range records {
		blobs[r.PluginID] = r.Data
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
		if blob, ok := blobs[p.Key.ID]; ok {
			r, err := p.StateField.Deserialize(blob)
			if err != nil {
				return nil, &SerializationError{Reason: fmt.Sprintf("decode resource %q", p.Key.ID), Err: err}
			}
			s.resources[p.Key.ID] = r
			continue
		}
		r, err := p.StateField.Init(ctx, config, s)
		if err != nil {
			return nil, fmt.Errorf("state: deserialize: plugin %q init: %w", p.Key.ID, err)
		}
		s.resources[p.Key.ID] = r
	}
	return s, nil
}
