package breaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry()

	a := r.GetOrCreate("payments")
	b := r.GetOrCreate("payments")
	assert.Same(t, a, b)

	c := r.GetOrCreate("search")
	assert.NotSame(t, a, c)
}

func TestRegistry_DefaultsApplyToCreatedBreakers(t *testing.T) {
	r := NewRegistry(WithFailureThreshold(1), WithResetTimeout(time.Hour))

	b := r.GetOrCreate("upstream")
	require.Error(t, b.Execute(context.Background(), func(context.Context) error {
		return assert.AnError
	}))
	assert.Equal(t, Open, b.State())
}

func TestRegistry_PerBreakerOptionsOverrideDefaults(t *testing.T) {
	r := NewRegistry(WithFailureThreshold(1))

	b := r.GetOrCreate("tolerant", WithFailureThreshold(3))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.Error(t, b.Execute(ctx, func(context.Context) error { return assert.AnError }))
	}
	assert.Equal(t, Closed, b.State())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()

	a := r.GetOrCreate("ephemeral")
	r.Remove("ephemeral")

	_, ok := r.Get("ephemeral")
	assert.False(t, ok)

	// Re-creation yields a fresh instance.
	b := r.GetOrCreate("ephemeral")
	assert.NotSame(t, a, b)
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("a")
	r.GetOrCreate("b")

	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	results := make([]*CircuitBreaker, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for _, b := range results {
		assert.Same(t, results[0], b)
	}
	assert.Len(t, r.Names(), 1)
}
