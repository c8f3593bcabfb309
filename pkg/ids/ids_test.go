package ids_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/moduforge-go/core/pkg/ids"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMonotonicAllocator_Unique verifies no two ids collide even under
// concurrent allocation.
func TestMonotonicAllocator_Unique(t *testing.T) {
	a := ids.NewMonotonicAllocator()

	const n = 2000
	seen := make(map[ids.NodeId]bool, n)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := a.Next()
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

// TestMonotonicAllocator_DifferentPrefixesNeverCollide verifies two
// allocators (simulating two processes) never produce the same id.
func TestMonotonicAllocator_DifferentPrefixesNeverCollide(t *testing.T) {
	a1 := ids.NewMonotonicAllocator()
	a2 := ids.NewMonotonicAllocator()

	for i := 0; i < 100; i++ {
		assert.NotEqual(t, a1.Next(), a2.Next())
	}
}

// TestRedisAllocator_MonotoneAcrossClients verifies that two
// RedisAllocators sharing a key never hand out the same counter value,
// simulating uniqueness across processes.
func TestRedisAllocator_MonotoneAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a1 := ids.NewRedisAllocator(client, "moduforge:ids:doc1", "p")
	a2 := ids.NewRedisAllocator(client, "moduforge:ids:doc1", "p")

	seen := make(map[ids.NodeId]bool)
	for i := 0; i < 50; i++ {
		id1, err := a1.NextContext(context.Background())
		require.NoError(t, err)
		id2, err := a2.NextContext(context.Background())
		require.NoError(t, err)

		require.False(t, seen[id1])
		require.False(t, seen[id2])
		seen[id1] = true
		seen[id2] = true
	}
}
