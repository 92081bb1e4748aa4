package handlers

import (
	"errors"
	"net/http"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/devicecode"
	"github.com/go-creditgate/creditgate/internal/middleware"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/services"

	"github.com/gin-gonic/gin"
)

type DeviceHandler struct {
	devices *services.DeviceService
	config  *config.Config
}

func NewDeviceHandler(ds *services.DeviceService, cfg *config.Config) *DeviceHandler {
	return &DeviceHandler{devices: ds, config: cfg}
}

// Code handles POST /device/code. Called by the CLI to start the flow;
// accepts form or JSON encoding.
func (h *DeviceHandler) Code(c *gin.Context) {
	scope := c.PostForm("scope")
	if scope == "" {
		var req struct {
			Scope string `json:"scope"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			scope = req.Scope
		}
	}

	auth, err := h.devices.Start(c.Request.Context(), scope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "failed to create device authorization",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_code":               auth.DeviceCode,
		"user_code":                 auth.UserCode,
		"verification_uri":          auth.VerificationURI,
		"verification_uri_complete": auth.VerificationURIComplete,
		"expires_in":                auth.ExpiresIn,
		"interval":                  auth.Interval,
	})
}

// Verify handles GET /device/verify?user_code=XXXX-XXXX. Shows what a
// pending flow is asking for; the device code secret is never included.
func (h *DeviceHandler) Verify(c *gin.Context) {
	userCode := c.Query("user_code")
	if userCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "user_code is required",
		})
		return
	}

	entry, err := h.devices.Inspect(userCode)
	if err != nil {
		switch {
		case errors.Is(err, devicecode.ErrExpired):
			c.JSON(http.StatusGone, gin.H{
				"error":             "expired_token",
				"error_description": "the code has expired, restart the flow on your device",
			})
		default:
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "invalid_request",
				"error_description": "unknown user code",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_code":  devicecode.FormatUserCode(entry.UserCode),
		"scopes":     models.JoinScopes(entry.Scopes),
		"status":     entry.Status,
		"expires_in": entry.SecondsRemaining(),
	})
}

// Authorize handles POST /device/authorize. Requires an authenticated
// session or token; binds the approving user to the pending flow.
func (h *DeviceHandler) Authorize(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userCode := c.PostForm("user_code")
	if userCode == "" {
		var req struct {
			UserCode string `json:"user_code"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			userCode = req.UserCode
		}
	}
	if userCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "user_code is required",
		})
		return
	}

	err := h.devices.Approve(c.Request.Context(), userCode, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, devicecode.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{
				"error":             "invalid_grant",
				"error_description": "the code was already redeemed",
			})
		case errors.Is(err, devicecode.ErrExpired):
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "expired_token",
				"error_description": "the code has expired, restart the flow on your device",
			})
		default:
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "invalid_request",
				"error_description": "unknown user code",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "authorized",
	})
}
