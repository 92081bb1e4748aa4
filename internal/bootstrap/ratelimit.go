package bootstrap

import (
	"log"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/middleware"

	"github.com/gin-gonic/gin"
)

// rateLimitMiddlewares holds rate limiting middlewares for different endpoints
type rateLimitMiddlewares struct {
	login       gin.HandlerFunc
	deviceCode  gin.HandlerFunc
	token       gin.HandlerFunc
	completions gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration
func setupRateLimiting(cfg *config.Config) rateLimitMiddlewares {
	// Return no-op middlewares when rate limiting is disabled
	noOpMiddleware := func(c *gin.Context) { c.Next() }

	if !cfg.RateLimitEnabled {
		return rateLimitMiddlewares{
			login:       noOpMiddleware,
			deviceCode:  noOpMiddleware,
			token:       noOpMiddleware,
			completions: noOpMiddleware,
		}
	}

	return createRateLimiters(cfg)
}

// createRateLimiters creates rate limiting middlewares for all endpoints
func createRateLimiters(cfg *config.Config) rateLimitMiddlewares {
	log.Printf("Rate limiting enabled (store: %s)", cfg.RateLimitStore)

	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)
	if storeType == middleware.RateLimitStoreMemory {
		log.Printf("In-memory rate limiting configured (single instance only)")
	}

	createLimiter := func(requestsPerMinute int64, endpoint string) gin.HandlerFunc {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: int(requestsPerMinute),
			StoreType:         storeType,
			RedisAddr:         cfg.RedisAddr,
			RedisPassword:     cfg.RedisPassword,
			RedisDB:           cfg.RedisDB,
			CleanupInterval:   cfg.RateLimitCleanupInterval,
		})
		if err != nil {
			log.Fatalf("Failed to create rate limiter for %s: %v", endpoint, err)
		}
		return limiter
	}

	return rateLimitMiddlewares{
		login:       createLimiter(cfg.LoginRateLimit, "/auth/login"),
		deviceCode:  createLimiter(cfg.DeviceCodeRateLimit, "/device/code"),
		token:       createLimiter(cfg.TokenRateLimit, "/device/token"),
		completions: createLimiter(cfg.CompletionsRateLimit, "/v1/chat/completions"),
	}
}
