// Package ids implements the identifier service: process-unique,
// strictly monotone node ids. See spec.md §4.1.
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// NodeId is an opaque id drawn from the identifier service. The schema
// places no syntactic constraint on it; callers must not parse it.
type NodeId string

// Allocator is the identifier service contract. Next is total and
// strictly monotone: no two calls on the same Allocator ever return
// the same id, and ids compare in allocation order when the
// underlying counter component is compared as an integer.
type Allocator interface {
	Next() NodeId
}

// MonotonicAllocator is the default, lock-free Allocator: an atomic
// fetch-add counter seeded with a per-process UUID so that ids stay
// collision-free even across process restarts sharing a persisted
// pool. This is the only allocator the core requires; RedisAllocator
// exists solely for callers who need ids unique across concurrently
// running processes.
type MonotonicAllocator struct {
	prefix  string
	counter uint64
}

// NewMonotonicAllocator creates an Allocator seeded with a fresh
// process prefix.
func NewMonotonicAllocator() *MonotonicAllocator {
	return &MonotonicAllocator{prefix: uuid.NewString()[:8]}
}

// Next returns the next id. Safe for concurrent use.
func (a *MonotonicAllocator) Next() NodeId {
	n := atomic.AddUint64(&a.counter, 1)
	return NodeId(fmt.Sprintf("%s-%d", a.prefix, n))
}
