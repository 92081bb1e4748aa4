package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/metrics"
	"github.com/go-creditgate/creditgate/internal/services"
	"github.com/go-creditgate/creditgate/internal/store"

	"github.com/appleboy/graceful"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streamed completions outlive ordinary requests; the idle
		// watchdog inside the gateway bounds them instead.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
}

// startWithGracefulShutdown starts the server and background jobs and
// handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addDeviceSweeperJob(m, app.Config, app.DeviceService)
	addRevocationSweeperJob(m, app.Config, app.TokenService)
	addGaugeUpdateJob(m, app.Config, app.DB, app.Metrics, app.MetricsCache)
	addAuditServiceShutdownJob(m, app.AuditService)
	addCacheCleanupJob(m, app.MetricsCache)

	<-m.Done()
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addDeviceSweeperJob evicts expired device codes in the background
func addDeviceSweeperJob(
	m *graceful.Manager,
	cfg *config.Config,
	deviceService *services.DeviceService,
) {
	m.AddRunningJob(func(ctx context.Context) error {
		deviceService.StartSweeper(ctx, cfg.DeviceSweepInterval)
		return nil
	})
}

// addRevocationSweeperJob drops expired entries from the revocation list
func addRevocationSweeperJob(
	m *graceful.Manager,
	cfg *config.Config,
	tokenService *services.TokenService,
) {
	m.AddRunningJob(func(ctx context.Context) error {
		tokenService.StartRevocationSweeper(ctx, cfg.RevocationSweepInterval)
		return nil
	})
}

// addAuditServiceShutdownJob adds audit service shutdown handler
func addAuditServiceShutdownJob(m *graceful.Manager, auditService *services.AuditService) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down audit service...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := auditService.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down audit service: %v", err)
			return err
		}
		return nil
	})
}

// addGaugeUpdateJob adds the periodic gauge refresh job
func addGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	recorder core.Recorder,
	metricsCache core.Cache[int64],
) {
	if !cfg.MetricsEnabled || metricsCache == nil {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.GaugeUpdateInterval)
		defer ticker.Stop()

		// The cache TTL matches the refresh period so every tick can
		// serve from a warm cache in multi-instance deployments.
		wrapper := metrics.NewCacheWrapper(db, metricsCache, cfg.GaugeUpdateInterval)

		updateGauges(ctx, wrapper, recorder)

		for {
			select {
			case <-ticker.C:
				updateGauges(ctx, wrapper, recorder)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addCacheCleanupJob adds cache cleanup on shutdown
func addCacheCleanupJob(m *graceful.Manager, metricsCache core.Cache[int64]) {
	if metricsCache == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := metricsCache.Close(); err != nil {
			log.Printf("Error closing metrics cache: %v", err)
		} else {
			log.Println("Metrics cache closed")
		}
		return nil
	})
}

// errorLogger rate-limits repeated gauge query failures
type errorLogger struct {
	lastErrorTimes  map[string]time.Time
	rateLimitWindow time.Duration
}

func newErrorLogger() *errorLogger {
	return &errorLogger{
		lastErrorTimes:  make(map[string]time.Time),
		rateLimitWindow: 5 * time.Minute,
	}
}

// logIfNeeded logs an error only if rate limit allows
func (e *errorLogger) logIfNeeded(operation string, err error) {
	now := time.Now()
	lastTime, exists := e.lastErrorTimes[operation]

	if !exists || now.Sub(lastTime) >= e.rateLimitWindow {
		log.Printf("Database query failed for %s: %v (further errors will be suppressed for %v)",
			operation, err, e.rateLimitWindow)
		e.lastErrorTimes[operation] = now
	}
}

var gaugeErrorLogger = newErrorLogger()

// updateGauges refreshes the user, ledger, and credit gauges from the
// cache-backed store
func updateGauges(ctx context.Context, wrapper *metrics.CacheWrapper, recorder core.Recorder) {
	users, err := wrapper.GetUsersCount(ctx)
	if err != nil {
		recorder.RecordDatabaseQueryError("count_users")
		gaugeErrorLogger.logIfNeeded("count_users", err)
	} else {
		recorder.SetRegisteredUsersCount(users)
	}

	txns, err := wrapper.GetTransactionsCount(ctx)
	if err != nil {
		recorder.RecordDatabaseQueryError("count_transactions")
		gaugeErrorLogger.logIfNeeded("count_transactions", err)
	} else {
		recorder.SetLedgerTransactionsCount(txns)
	}

	outstanding, err := wrapper.GetOutstandingCredits(ctx)
	if err != nil {
		recorder.RecordDatabaseQueryError("sum_outstanding_credits")
		gaugeErrorLogger.logIfNeeded("sum_outstanding_credits", err)
	} else {
		recorder.SetOutstandingCredits(outstanding)
	}
}
