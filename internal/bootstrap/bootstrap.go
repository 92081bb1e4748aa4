package bootstrap

import (
	"net/http"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/gateway"
	"github.com/go-creditgate/creditgate/internal/services"
	"github.com/go-creditgate/creditgate/internal/store"

	"github.com/gin-gonic/gin"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB           *store.Store
	Metrics      core.Recorder
	MetricsCache core.Cache[int64]

	// Services
	AuditService  *services.AuditService
	LedgerService *services.LedgerService
	UserService   *services.UserService
	DeviceService *services.DeviceService
	TokenService  *services.TokenService
	Gateway       *gateway.Gateway

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	validateAllConfiguration(cfg)

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(); err != nil {
		return err
	}

	// Phase 4: Initialize HTTP layer
	app.initializeHTTPLayer()

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, metrics, and cache
func (app *Application) initializeInfrastructure() error {
	var err error

	app.DB, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	app.Metrics = initializeMetrics(app.Config)

	app.MetricsCache, err = initializeMetricsCache(app.Config)
	if err != nil {
		return err
	}

	return nil
}

// initializeBusinessLayer sets up services and the upstream gateway
func (app *Application) initializeBusinessLayer() error {
	// Audit service (required by other services)
	app.AuditService = services.NewAuditService(
		app.DB,
		app.Config.AuditEnabled,
		app.Config.AuditBufferSize,
	)

	app.LedgerService,
		app.UserService,
		app.DeviceService,
		app.TokenService = initializeServices(
		app.Config,
		app.DB,
		app.AuditService,
		app.Metrics,
	)

	var err error
	app.Gateway, err = initializeGateway(
		app.Config,
		app.LedgerService,
		app.AuditService,
		app.Metrics,
	)
	return err
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() {
	app.HandlerSet = initializeHandlers(
		app.Config,
		app.UserService,
		app.DeviceService,
		app.TokenService,
		app.LedgerService,
		app.AuditService,
		app.Gateway,
		app.Metrics,
	)

	app.Router = setupRouter(
		app.Config,
		app.DB,
		app.HandlerSet,
		app.Metrics,
		app.LedgerService,
		app.AuditService,
		app.UserService,
		app.TokenService,
	)

	app.Server = createHTTPServer(app.Config, app.Router)
}
