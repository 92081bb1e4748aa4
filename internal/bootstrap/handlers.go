package bootstrap

import (
	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/gateway"
	"github.com/go-creditgate/creditgate/internal/handlers"
	"github.com/go-creditgate/creditgate/internal/services"
)

// handlerSet holds all HTTP handlers
type handlerSet struct {
	auth   *handlers.AuthHandler
	device *handlers.DeviceHandler
	token  *handlers.TokenHandler
	chat   *handlers.ChatHandler
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(
	cfg *config.Config,
	userService *services.UserService,
	deviceService *services.DeviceService,
	tokenService *services.TokenService,
	ledgerService *services.LedgerService,
	auditService *services.AuditService,
	gw *gateway.Gateway,
	recorder core.Recorder,
) handlerSet {
	return handlerSet{
		auth: handlers.NewAuthHandler(
			userService,
			tokenService,
			ledgerService,
			auditService,
			recorder,
			cfg,
		),
		device: handlers.NewDeviceHandler(deviceService, cfg),
		token:  handlers.NewTokenHandler(tokenService, cfg),
		chat:   handlers.NewChatHandler(gw),
	}
}
