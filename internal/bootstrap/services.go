package bootstrap

import (
	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/devicecode"
	"github.com/go-creditgate/creditgate/internal/services"
	"github.com/go-creditgate/creditgate/internal/store"
	"github.com/go-creditgate/creditgate/internal/token"
)

// initializeServices creates all business logic services
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	auditService *services.AuditService,
	recorder core.Recorder,
) (*services.LedgerService, *services.UserService, *services.DeviceService, *services.TokenService) {
	ledgerService := services.NewLedgerService(db, cfg, auditService, recorder)
	userService := services.NewUserService(db, cfg, ledgerService, auditService, recorder)

	deviceCodes := devicecode.NewMemoryStore(cfg.DeviceCodeExpiration, cfg.PollingInterval)
	deviceService := services.NewDeviceService(deviceCodes, cfg, auditService, recorder)

	tokenService := services.NewTokenService(
		db,
		token.NewProvider(cfg),
		token.NewRevocationList(),
		deviceService,
		auditService,
		recorder,
	)

	return ledgerService, userService, deviceService, tokenService
}
