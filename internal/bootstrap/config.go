package bootstrap

import (
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/go-creditgate/creditgate/internal/config"
)

// validateAllConfiguration validates all configuration settings
func validateAllConfiguration(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := validateUpstreamConfig(cfg); err != nil {
		log.Fatalf("Invalid upstream configuration: %v", err)
	}
	if err := validateCacheConfig(cfg); err != nil {
		log.Fatalf("Invalid cache configuration: %v", err)
	}
}

// validateUpstreamConfig checks that the metered proxy can actually
// reach an upstream API
func validateUpstreamConfig(cfg *config.Config) error {
	if cfg.UpstreamBaseURL == "" {
		return errors.New("UPSTREAM_BASE_URL is required")
	}
	u, err := url.Parse(cfg.UpstreamBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is not a valid URL: %s", cfg.UpstreamBaseURL)
	}
	if cfg.UpstreamAPIKey == "" {
		log.Println("Warning: UPSTREAM_API_KEY is empty, upstream calls will be unauthenticated")
	}
	return nil
}

// validateCacheConfig checks that required config is present for the
// selected cache and rate limit backends
func validateCacheConfig(cfg *config.Config) error {
	switch cfg.CacheMode {
	case config.CacheModeMemory:
		// No additional validation needed
	case config.CacheModeRedis, config.CacheModeRedisAside:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_MODE=%s", cfg.CacheMode)
		}
	default:
		return fmt.Errorf(
			"invalid CACHE_MODE: %s (must be: memory, redis, redis-aside)",
			cfg.CacheMode,
		)
	}

	switch cfg.RateLimitStore {
	case "memory":
		// No additional validation needed
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
		}
	default:
		return fmt.Errorf(
			"invalid RATE_LIMIT_STORE: %s (must be: memory, redis)",
			cfg.RateLimitStore,
		)
	}

	return nil
}
