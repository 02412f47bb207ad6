package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ppdb/pkg/domain"
)

func testKey() Key {
	return Key{TenantID: id.NewTenantID(), CycleYear: 2025, BatchCode: "GEL01"}
}

func TestInMemoryStore(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	key := testKey()

	t.Run("starts at 1 and increases", func(t *testing.T) {
		for want := 1; want <= 5; want++ {
			got, err := store.Next(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		other := Key{TenantID: key.TenantID, CycleYear: 2025, BatchCode: "GEL02"}
		got, err := store.Next(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	})

	t.Run("seed raises but never lowers", func(t *testing.T) {
		key := testKey()
		require.NoError(t, store.Seed(ctx, key, 40))
		got, err := store.Next(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 41, got)

		require.NoError(t, store.Seed(ctx, key, 10))
		got, err = store.Next(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})
}

// TestInMemoryStore_Concurrent checks the uniqueness property: N
// concurrent allocations for one key yield a set of N distinct values.
func TestInMemoryStore_Concurrent(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	key := testKey()

	const n = 1000
	results := make(chan int, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, err := store.Next(ctx, key)
			assert.NoError(t, err)
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool, n)
	for v := range results {
		assert.False(t, seen[v], "duplicate sequence %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, store.Current(key), "counter should equal the number of allocations")
}
