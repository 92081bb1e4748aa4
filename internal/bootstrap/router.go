package bootstrap

import (
	"log"
	"net/http"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/metrics"
	"github.com/go-creditgate/creditgate/internal/middleware"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/services"
	"github.com/go-creditgate/creditgate/internal/store"
	"github.com/go-creditgate/creditgate/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	recorder core.Recorder,
	ledgerService *services.LedgerService,
	auditService *services.AuditService,
	userService *services.UserService,
	tokenService *services.TokenService,
) *gin.Engine {
	setupGinMode(cfg)
	r := gin.New()

	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(util.IPMiddleware())

	setupSessionMiddleware(r, cfg)

	// Health check endpoint
	r.GET("/health", createHealthCheckHandler(db))

	setupMetricsEndpoint(r, cfg)

	rateLimiters := setupRateLimiting(cfg)

	setupAllRoutes(r, h, rateLimiters, routeGuards{
		gate:           middleware.Gate(cfg, userService, tokenService),
		requireChat:    middleware.RequireScope(models.ScopeLLMChat),
		requireCredits: middleware.RequireCredits(ledgerService, auditService, recorder),
	})

	logServerStartup(cfg)

	return r
}

// routeGuards bundles the auth middleware shared across route groups
type routeGuards struct {
	gate           gin.HandlerFunc
	requireChat    gin.HandlerFunc
	requireCredits gin.HandlerFunc
}

// setupSessionMiddleware configures session handling middleware
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("creditgate_session", sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuth(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupAllRoutes configures all application routes
func setupAllRoutes(
	r *gin.Engine,
	h handlerSet,
	rateLimiters rateLimitMiddlewares,
	guards routeGuards,
) {
	// Device flow (public, called by the CLI and the approving browser)
	device := r.Group("/device")
	{
		device.POST("/code", rateLimiters.deviceCode, h.device.Code)
		device.GET("/verify", h.device.Verify)
		device.POST("/authorize", guards.gate, h.device.Authorize)
		device.POST("/token", rateLimiters.token, h.token.Token)
	}

	// Account routes
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.auth.Register)
		auth.POST("/login", rateLimiters.login, h.auth.Login)
		auth.POST("/logout", h.auth.Logout)
		auth.POST("/revoke", h.auth.Revoke)
		auth.GET("/me", guards.gate, h.auth.Me)
		auth.GET("/credits", guards.gate, h.auth.History)
	}

	// Metered upstream proxy
	v1 := r.Group("/v1")
	v1.Use(guards.gate, guards.requireChat, guards.requireCredits)
	{
		v1.POST("/chat/completions", rateLimiters.completions, h.chat.Completions)
	}
}

// createHealthCheckHandler creates health check endpoint handler
func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch err := db.Health(); err {
		case nil:
			c.JSON(http.StatusOK, gin.H{
				"status":   "healthy",
				"database": "connected",
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
		}
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
		log.Printf("Gin mode: Release (production)")
		return
	}
	gin.SetMode(gin.DebugMode)
	log.Printf("Gin mode: Debug (development)")
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config) {
	log.Printf("Credit gateway starting on %s", cfg.ServerAddr)
	log.Printf("Verification URL: %s/device", cfg.BaseURL)
	log.Printf("Upstream API: %s", cfg.UpstreamBaseURL)
	log.Printf("Default user: admin (check logs for password if first run)")
}
