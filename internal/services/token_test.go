package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/devicecode"
	"github.com/go-creditgate/creditgate/internal/metrics"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/store"
	"github.com/go-creditgate/creditgate/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTokenTest(t *testing.T) (*TokenService, *DeviceService, int64) {
	t.Helper()

	s, err := store.New("sqlite", ":memory:", store.NewOptions{})
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:                "http://localhost:8080",
		JWTSecret:              "test-secret-32-bytes-long-enough",
		TokenIssuer:            "creditgate",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 720 * time.Hour,
		DeviceCodeExpiration:   10 * time.Minute,
		PollingInterval:        5,
	}

	recorder := metrics.NewNoopMetrics()
	codes := devicecode.NewMemoryStore(cfg.DeviceCodeExpiration, cfg.PollingInterval)
	devices := NewDeviceService(codes, cfg, nil, recorder)
	provider := token.NewProvider(cfg)
	svc := NewTokenService(s, provider, token.NewRevocationList(), devices, nil, recorder)

	user := &models.User{
		Username:     "poller",
		Email:        "poller@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, s.CreateUser(user))

	return svc, devices, user.ID
}

func TestExchangeDeviceCodePending(t *testing.T) {
	svc, devices, _ := setupTokenTest(t)
	ctx := context.Background()

	auth, err := devices.Start(ctx, "llm:chat")
	require.NoError(t, err)

	_, err = svc.ExchangeDeviceCode(ctx, auth.DeviceCode)
	assert.ErrorIs(t, err, devicecode.ErrAuthorizationPending)
}

func TestExchangeDeviceCodeSuccess(t *testing.T) {
	svc, devices, userID := setupTokenTest(t)
	ctx := context.Background()

	auth, err := devices.Start(ctx, "llm:chat mcp:read")
	require.NoError(t, err)
	require.NoError(t, devices.Approve(ctx, auth.UserCode, userID))

	pair, err := svc.ExchangeDeviceCode(ctx, auth.DeviceCode)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, "llm:chat mcp:read", pair.Scope)
	assert.Greater(t, pair.ExpiresIn, 0)

	claims, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "poller", claims.Subject)
}

func TestExchangeDeviceCodeSingleUse(t *testing.T) {
	svc, devices, userID := setupTokenTest(t)
	ctx := context.Background()

	auth, err := devices.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, devices.Approve(ctx, auth.UserCode, userID))

	_, err = svc.ExchangeDeviceCode(ctx, auth.DeviceCode)
	require.NoError(t, err)

	_, err = svc.ExchangeDeviceCode(ctx, auth.DeviceCode)
	assert.ErrorIs(t, err, devicecode.ErrNotFound)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, devices, userID := setupTokenTest(t)
	ctx := context.Background()

	auth, err := devices.Start(ctx, "llm:chat")
	require.NoError(t, err)
	require.NoError(t, devices.Approve(ctx, auth.UserCode, userID))
	pair, err := svc.ExchangeDeviceCode(ctx, auth.DeviceCode)
	require.NoError(t, err)

	fresh, err := svc.RefreshAccessToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.Equal(t, "llm:chat", fresh.Scope)

	// The presented refresh token is dead after rotation
	_, err = svc.RefreshAccessToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, token.ErrTokenRevoked)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, devices, userID := setupTokenTest(t)
	ctx := context.Background()

	auth, err := devices.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, devices.Approve(ctx, auth.UserCode, userID))
	pair, err := svc.ExchangeDeviceCode(ctx, auth.DeviceCode)
	require.NoError(t, err)

	_, err = svc.RefreshAccessToken(ctx, pair.AccessToken)
	assert.Error(t, err)
}

func TestRevokeRefreshToken(t *testing.T) {
	svc, devices, userID := setupTokenTest(t)
	ctx := context.Background()

	auth, err := devices.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, devices.Approve(ctx, auth.UserCode, userID))
	pair, err := svc.ExchangeDeviceCode(ctx, auth.DeviceCode)
	require.NoError(t, err)

	svc.Revoke(ctx, pair.RefreshToken)

	_, err = svc.RefreshAccessToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, token.ErrTokenRevoked)
}

func TestRevokeGarbageIsSilent(t *testing.T) {
	svc, _, _ := setupTokenTest(t)

	assert.NotPanics(t, func() {
		svc.Revoke(context.Background(), "not-a-token")
	})
}
