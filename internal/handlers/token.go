package handlers

import (
	"errors"
	"net/http"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/devicecode"
	"github.com/go-creditgate/creditgate/internal/services"
	"github.com/go-creditgate/creditgate/internal/token"

	"github.com/gin-gonic/gin"
)

type TokenHandler struct {
	tokens *services.TokenService
	config *config.Config
}

func NewTokenHandler(ts *services.TokenService, cfg *config.Config) *TokenHandler {
	return &TokenHandler{tokens: ts, config: cfg}
}

// Token handles POST /device/token, the polling endpoint. Supports the
// RFC 8628 device_code grant and the RFC 6749 refresh_token grant.
func (h *TokenHandler) Token(c *gin.Context) {
	switch c.PostForm("grant_type") {
	case services.GrantTypeDeviceCode:
		h.deviceCodeGrant(c)
	case services.GrantTypeRefreshToken:
		h.refreshTokenGrant(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: device_code, refresh_token",
		})
	}
}

func (h *TokenHandler) deviceCodeGrant(c *gin.Context) {
	deviceCode := c.PostForm("device_code")
	if deviceCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "device_code is required",
		})
		return
	}

	pair, err := h.tokens.ExchangeDeviceCode(c.Request.Context(), deviceCode)
	if err != nil {
		switch {
		case errors.Is(err, devicecode.ErrAuthorizationPending):
			c.JSON(http.StatusBadRequest, gin.H{"error": "authorization_pending"})
		case errors.Is(err, devicecode.ErrSlowDown):
			c.JSON(http.StatusBadRequest, gin.H{"error": "slow_down"})
		case errors.Is(err, devicecode.ErrExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "expired_token"})
		case errors.Is(err, devicecode.ErrNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
		case errors.Is(err, services.ErrUserNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	body := tokenPairBody(pair)
	if pair.User != nil {
		body["user"] = gin.H{
			"id":       pair.User.ID,
			"username": pair.User.Username,
			"plan":     pair.User.Plan,
			"credits":  pair.User.CreditBalance,
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *TokenHandler) refreshTokenGrant(c *gin.Context) {
	refreshToken := c.PostForm("refresh_token")
	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	pair, err := h.tokens.RefreshAccessToken(c.Request.Context(), refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredRefreshToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "expired_token"})
		case errors.Is(err, token.ErrTokenRevoked),
			errors.Is(err, token.ErrInvalidRefreshToken),
			errors.Is(err, services.ErrUserNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	c.JSON(http.StatusOK, tokenPairBody(pair))
}

func tokenPairBody(pair *services.TokenPair) gin.H {
	return gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
		"scope":         pair.Scope,
	}
}
