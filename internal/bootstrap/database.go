package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-creditgate/creditgate/internal/cache"
	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/metrics"
	"github.com/go-creditgate/creditgate/internal/store"
)

// initializeDatabase creates and initializes the database connection
func initializeDatabase(cfg *config.Config) (*store.Store, error) {
	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, store.NewOptions{
		SignupBonus: cfg.SignupBonusCredits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Printf("Database initialized (driver: %s)", cfg.DatabaseDriver)
	return db, nil
}

// initializeMetrics initializes Prometheus metrics
func initializeMetrics(cfg *config.Config) core.Recorder {
	recorder := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	} else {
		log.Println("Metrics disabled (using noop implementation)")
	}
	return recorder
}

// initializeMetricsCache initializes the gauge query cache based on
// configuration. Returns nil when metrics are disabled.
func initializeMetricsCache(cfg *config.Config) (core.Cache[int64], error) {
	if !cfg.MetricsEnabled {
		return nil, nil //nolint:nilnil // cache not needed in this configuration
	}

	switch cfg.CacheMode {
	case config.CacheModeRedisAside:
		c, err := cache.NewRueidisAsideCache(
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			cfg.CacheKeyPrefix+"metrics:",
			cfg.CacheClientTTL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis-aside metrics cache: %w", err)
		}
		log.Printf(
			"Metrics cache: redis-aside (addr=%s, db=%d, client_ttl=%s)",
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.CacheClientTTL,
		)
		return c, nil

	case config.CacheModeRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		c, err := cache.NewRueidisCache[int64](
			ctx,
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			cfg.CacheKeyPrefix+"metrics:",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis metrics cache: %w", err)
		}
		log.Printf("Metrics cache: redis (addr=%s, db=%d)", cfg.RedisAddr, cfg.RedisDB)
		return c, nil

	default: // memory
		log.Println("Metrics cache: memory (single instance only)")
		return cache.NewMemoryCache[int64](), nil
	}
}
