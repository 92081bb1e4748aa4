package token

import (
	"testing"
	"time"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:              "test-secret-key-for-tokens",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 720 * time.Hour,
		TokenIssuer:            "creditgate-test",
	}
}

func TestMintAccessRoundTrip(t *testing.T) {
	provider := NewProvider(testConfig())
	scopes := []models.Scope{models.ScopeLLMChat, models.ScopeMCPRead}

	minted, err := provider.MintAccess("alice", 42, scopes)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeBearer, minted.TokenType)
	assert.NotEmpty(t, minted.JTI)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), minted.ExpiresAt, 5*time.Second)

	claims, err := provider.VerifyAccess(minted.TokenString)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, scopes, claims.Scopes)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.Equal(t, minted.JTI, claims.JTI)
}

func TestMintRefreshRoundTrip(t *testing.T) {
	provider := NewProvider(testConfig())

	minted, err := provider.MintRefresh("bob", 7, []models.Scope{models.ScopeLLMChat})
	require.NoError(t, err)

	claims, err := provider.VerifyRefresh(minted.TokenString)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Kind)
	assert.Equal(t, int64(7), claims.UserID)
}

func TestKindIsEnforced(t *testing.T) {
	provider := NewProvider(testConfig())

	access, err := provider.MintAccess("alice", 1, []models.Scope{models.ScopeLLMChat})
	require.NoError(t, err)
	refresh, err := provider.MintRefresh("alice", 1, []models.Scope{models.ScopeLLMChat})
	require.NoError(t, err)

	// A refresh token must never pass as an access token
	_, err = provider.VerifyAccess(refresh.TokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// And vice versa
	_, err = provider.VerifyRefresh(access.TokenString)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestExpiredAccessToken(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTokenExpiration = -time.Minute
	provider := NewProvider(cfg)

	minted, err := provider.MintAccess("alice", 1, []models.Scope{models.ScopeLLMChat})
	require.NoError(t, err)

	_, err = provider.VerifyAccess(minted.TokenString)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTamperedToken(t *testing.T) {
	provider := NewProvider(testConfig())

	minted, err := provider.MintAccess("alice", 1, []models.Scope{models.ScopeLLMChat})
	require.NoError(t, err)

	_, err = provider.VerifyAccess(minted.TokenString + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongSecretRejected(t *testing.T) {
	provider := NewProvider(testConfig())
	minted, err := provider.MintAccess("alice", 1, []models.Scope{models.ScopeLLMChat})
	require.NoError(t, err)

	other := testConfig()
	other.JWTSecret = "a-different-secret-entirely"
	_, err = NewProvider(other).VerifyAccess(minted.TokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevocationList(t *testing.T) {
	list := NewRevocationList()

	assert.False(t, list.IsRevoked("some-jti"))

	list.Revoke("some-jti", time.Now().Add(time.Hour))
	assert.True(t, list.IsRevoked("some-jti"))

	// Entries lapse with their token's expiry
	list.Revoke("stale-jti", time.Now().Add(-time.Minute))
	assert.False(t, list.IsRevoked("stale-jti"))
}

func TestRevocationListSweep(t *testing.T) {
	list := NewRevocationList()
	list.Revoke("live", time.Now().Add(time.Hour))
	list.Revoke("dead-1", time.Now().Add(-time.Minute))
	list.Revoke("dead-2", time.Now().Add(-time.Minute))

	assert.Equal(t, 2, list.Sweep())
	assert.True(t, list.IsRevoked("live"))
}
