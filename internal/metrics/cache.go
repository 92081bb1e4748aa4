package metrics

import (
	"context"
	"time"

	"github.com/go-creditgate/creditgate/internal/core"
)

const (
	cacheKeyUsersCount         = "metrics:users_count"
	cacheKeyTransactionsCount  = "metrics:transactions_count"
	cacheKeyOutstandingCredits = "metrics:outstanding_credits"
)

// CacheWrapper wraps expensive database aggregate queries with a cache
// so the periodic gauge updater does not hammer the database. Works
// with either the in-memory cache or the Redis client-side cache.
type CacheWrapper struct {
	store core.MetricsStore
	cache core.Cache[int64]
	ttl   time.Duration
}

// NewCacheWrapper creates a cached view over the store's aggregate counts.
func NewCacheWrapper(store core.MetricsStore, cache core.Cache[int64], ttl time.Duration) *CacheWrapper {
	return &CacheWrapper{
		store: store,
		cache: cache,
		ttl:   ttl,
	}
}

// GetUsersCount returns the registered user count, cached.
func (w *CacheWrapper) GetUsersCount(ctx context.Context) (int64, error) {
	return w.cache.GetWithFetch(
		ctx,
		cacheKeyUsersCount,
		w.ttl,
		func(ctx context.Context, key string) (int64, error) {
			return w.store.CountUsers()
		},
	)
}

// GetTransactionsCount returns the ledger row count, cached.
func (w *CacheWrapper) GetTransactionsCount(ctx context.Context) (int64, error) {
	return w.cache.GetWithFetch(
		ctx,
		cacheKeyTransactionsCount,
		w.ttl,
		func(ctx context.Context, key string) (int64, error) {
			return w.store.CountTransactions()
		},
	)
}

// GetOutstandingCredits returns the sum of all user balances, cached.
func (w *CacheWrapper) GetOutstandingCredits(ctx context.Context) (int64, error) {
	return w.cache.GetWithFetch(
		ctx,
		cacheKeyOutstandingCredits,
		w.ttl,
		func(ctx context.Context, key string) (int64, error) {
			return w.store.SumOutstandingCredits()
		},
	)
}
