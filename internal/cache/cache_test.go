package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-creditgate/creditgate/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache[int64]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "users_count", 42, time.Minute))

	value, err := c.Get(ctx, "users_count")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
}

func TestMemoryCache_GetMiss(t *testing.T) {
	c := NewMemoryCache[int64]()

	_, err := c.Get(context.Background(), "never-set")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := NewMemoryCache[int64]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", 100, 50*time.Millisecond))

	value, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, int64(100), value)

	time.Sleep(100 * time.Millisecond)

	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache[int64]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "doomed", 123, time.Minute))
	require.NoError(t, c.Delete(ctx, "doomed"))

	_, err := c.Get(ctx, "doomed")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_CloseClearsItems(t *testing.T) {
	c := NewMemoryCache[int64]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Close())

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Health(t *testing.T) {
	c := NewMemoryCache[int64]()
	assert.NoError(t, c.Health(context.Background()))
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache[int64]()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared", int64(n*1000+j), time.Minute)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = c.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	_, err := c.Get(ctx, "shared")
	assert.NoError(t, err)
}

func TestMemoryCache_GetWithFetch(t *testing.T) {
	c := NewMemoryCache[int64]()
	ctx := context.Background()

	fetchCount := 0
	fetch := func(ctx context.Context, key string) (int64, error) {
		fetchCount++
		return 42, nil
	}

	value, err := c.GetWithFetch(ctx, "aggregate", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
	assert.Equal(t, 1, fetchCount)

	// Second call is a hit; the source is not consulted again
	value, err = c.GetWithFetch(ctx, "aggregate", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
	assert.Equal(t, 1, fetchCount)
}

func TestMemoryCache_GetWithFetchError(t *testing.T) {
	c := NewMemoryCache[int64]()

	fetchErr := errors.New("source unavailable")
	_, err := c.GetWithFetch(
		context.Background(),
		"aggregate",
		time.Minute,
		func(ctx context.Context, key string) (int64, error) {
			return 0, fetchErr
		},
	)
	assert.ErrorIs(t, err, fetchErr)
}

func TestMemoryCache_GetWithFetchHonorsTTL(t *testing.T) {
	// Used through the interface the gauge updater sees.
	var c core.Cache[int64] = NewMemoryCache[int64]()
	ctx := context.Background()

	fetchCount := 0
	fetch := func(ctx context.Context, key string) (int64, error) {
		fetchCount++
		return int64(fetchCount), nil
	}

	_, err := c.GetWithFetch(ctx, "aggregate", 50*time.Millisecond, fetch)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	value, err := c.GetWithFetch(ctx, "aggregate", 50*time.Millisecond, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)
	assert.Equal(t, 2, fetchCount)
}
