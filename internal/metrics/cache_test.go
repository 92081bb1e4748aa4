package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-creditgate/creditgate/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetricsStore struct {
	users        int64
	transactions int64
	outstanding  int64
	calls        int
	err          error
}

func (f *fakeMetricsStore) CountUsers() (int64, error) {
	f.calls++
	return f.users, f.err
}

func (f *fakeMetricsStore) CountTransactions() (int64, error) {
	f.calls++
	return f.transactions, f.err
}

func (f *fakeMetricsStore) SumOutstandingCredits() (int64, error) {
	f.calls++
	return f.outstanding, f.err
}

func TestCacheWrapperServesFromCache(t *testing.T) {
	store := &fakeMetricsStore{users: 42}
	wrapper := NewCacheWrapper(store, cache.NewMemoryCache[int64](), time.Minute)

	ctx := context.Background()

	count, err := wrapper.GetUsersCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.Equal(t, 1, store.calls)

	// Second read within the TTL should not touch the store
	count, err = wrapper.GetUsersCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.Equal(t, 1, store.calls)
}

func TestCacheWrapperExpiry(t *testing.T) {
	store := &fakeMetricsStore{transactions: 7}
	wrapper := NewCacheWrapper(store, cache.NewMemoryCache[int64](), time.Millisecond)

	ctx := context.Background()

	_, err := wrapper.GetTransactionsCount(ctx)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	store.transactions = 8
	count, err := wrapper.GetTransactionsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)
	assert.Equal(t, 2, store.calls)
}

func TestCacheWrapperPropagatesStoreError(t *testing.T) {
	store := &fakeMetricsStore{err: errors.New("database gone")}
	wrapper := NewCacheWrapper(store, cache.NewMemoryCache[int64](), time.Minute)

	_, err := wrapper.GetOutstandingCredits(context.Background())
	assert.Error(t, err)
}
