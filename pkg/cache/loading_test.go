package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadingCache_LoadsOnceAndCaches(t *testing.T) {
	lc := NewLoadingCache(newTestStore[string](testConfig(PolicyLRU, 10)), nil)
	var calls atomic.Int32
	loader := func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		return "loaded:" + key, nil
	}

	v, err := lc.GetOrLoad(context.Background(), "a", loader)
	require.NoError(t, err)
	assert.Equal(t, "loaded:a", v)

	v, err = lc.GetOrLoad(context.Background(), "a", loader)
	require.NoError(t, err)
	assert.Equal(t, "loaded:a", v)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, lc.Contains("a"))
}

func TestLoadingCache_DeduplicatesConcurrentLoads(t *testing.T) {
	lc := NewLoadingCache(newTestStore[int](testConfig(PolicyLRU, 10)), nil)
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := lc.GetOrLoad(context.Background(), "k", loader)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestLoadingCache_ErrorsAndBreaker(t *testing.T) {
	cfg := DefaultLoaderConfig()
	cfg.ReadyToTrip = 2
	cfg.Timeout = time.Hour
	lc := NewLoadingCache(newTestStore[int](testConfig(PolicyLRU, 10)), cfg)

	boom := errors.New("backend down")
	var calls atomic.Int32
	loader := func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		return 0, boom
	}

	for i := 0; i < 2; i++ {
		_, err := lc.GetOrLoad(context.Background(), "k", loader)
		assert.ErrorIs(t, err, ErrLoadFailed)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, lc.BreakerState())

	_, err := lc.GetOrLoad(context.Background(), "k", loader)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, lc.Contains("k"))
}

func TestLoadingCache_CanceledContext(t *testing.T) {
	lc := NewLoadingCache(newTestStore[int](testConfig(PolicyLRU, 10)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lc.GetOrLoad(ctx, "k", func(ctx context.Context, key string) (int, error) {
		t.Fatal("loader must not run")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
