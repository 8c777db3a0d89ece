package circuitbreaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)

	cb1 := r.GetOrCreate("provider-a")
	cb2 := r.GetOrCreate("provider-a")

	assert.Same(t, cb1, cb2)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Get_Missing(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)

	assert.Nil(t, r.Get("missing"))
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)

	r.GetOrCreate("provider-a")
	r.Remove("provider-a")

	assert.Nil(t, r.Get("provider-a"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_BreakersAreIndependent(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().WithFailureThreshold(1).WithResetTimeout(time.Minute)
	r := NewRegistry(cfg, nil)

	_ = r.GetOrCreate("failing").Execute(context.Background(), func() error { return assert.AnError })

	assert.Equal(t, StateOpen, r.GetOrCreate("failing").State())
	assert.Equal(t, StateClosed, r.GetOrCreate("healthy").State())
}

func TestRegistry_ResetAll(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().WithFailureThreshold(1).WithResetTimeout(time.Minute)
	r := NewRegistry(cfg, nil)

	_ = r.GetOrCreate("a").Execute(context.Background(), func() error { return assert.AnError })
	_ = r.GetOrCreate("b").Execute(context.Background(), func() error { return assert.AnError })

	r.ResetAll()

	assert.Equal(t, StateClosed, r.Get("a").State())
	assert.Equal(t, StateClosed, r.Get("b").State())
}

func TestRegistry_Stats(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)

	_ = r.GetOrCreate("a").Execute(context.Background(), func() error { return nil })
	r.GetOrCreate("b")

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats["a"].TotalSuccesses)
	assert.Equal(t, int64(0), stats["b"].TotalAttempts)
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil)

	var wg sync.WaitGroup
	results := make([]*CircuitBreaker, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < 10; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, r.Count())
}
