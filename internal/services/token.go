package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/store"
	"github.com/go-creditgate/creditgate/internal/token"
)

const (
	GrantTypeDeviceCode   = "urn:ietf:params:oauth:grant-type:device_code"
	GrantTypeRefreshToken = "refresh_token"
)

var ErrUserNotFound = errors.New("user not found")

// TokenPair is the issued access/refresh token set. User carries the
// account the pair was minted for so the device-code grant response can
// include it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	Scope        string
	User         *models.User
}

// TokenService issues and rotates tokens for completed device flows.
type TokenService struct {
	store    *store.Store
	provider *token.Provider
	revoked  *token.RevocationList
	devices  *DeviceService
	audit    *AuditService
	metrics  core.Recorder
}

func NewTokenService(
	s *store.Store,
	provider *token.Provider,
	revoked *token.RevocationList,
	devices *DeviceService,
	audit *AuditService,
	m core.Recorder,
) *TokenService {
	return &TokenService{
		store:    s,
		provider: provider,
		revoked:  revoked,
		devices:  devices,
		audit:    audit,
		metrics:  m,
	}
}

// ExchangeDeviceCode redeems an authorized device code for a token pair.
// The device code is consumed; replaying it returns not found.
func (s *TokenService) ExchangeDeviceCode(ctx context.Context, deviceCode string) (*TokenPair, error) {
	entry, err := s.devices.Consume(ctx, deviceCode)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(entry.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	return s.issuePair(ctx, user, entry.Scopes, GrantTypeDeviceCode)
}

// RefreshAccessToken rotates a refresh token into a new token pair. The
// presented refresh token is revoked so it cannot be replayed.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.provider.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		return nil, err
	}

	if s.revoked.IsRevoked(claims.JTI) {
		s.metrics.RecordTokenRefresh(false)
		return nil, token.ErrTokenRevoked
	}

	user, err := s.store.GetUserByID(claims.UserID)
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrUserNotFound
	}

	// Rotate: the old refresh token dies with this exchange
	s.revoked.Revoke(claims.JTI, claims.ExpiresAt)
	s.metrics.RecordTokenRevoked(token.KindRefresh)

	pair, err := s.issuePair(ctx, user, claims.Scopes, GrantTypeRefreshToken)
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		return nil, err
	}

	s.metrics.RecordTokenRefresh(true)
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			ActorUserID:  user.ID,
			EventType:    models.EventTokenRefreshed,
			ResourceType: models.ResourceToken,
			Success:      true,
		})
	}
	return pair, nil
}

// Revoke invalidates a presented token. Per RFC 7009 the caller cannot
// distinguish a revoked token from an unknown one, so parse failures
// are swallowed.
func (s *TokenService) Revoke(ctx context.Context, tokenString string) {
	claims, err := s.provider.VerifyRefresh(tokenString)
	kind := token.KindRefresh
	if err != nil {
		claims, err = s.provider.VerifyAccess(tokenString)
		kind = token.KindAccess
	}
	if err != nil {
		return
	}

	s.revoked.Revoke(claims.JTI, claims.ExpiresAt)
	s.metrics.RecordTokenRevoked(kind)
	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			ActorUserID:  claims.UserID,
			EventType:    models.EventTokenRevoked,
			ResourceType: models.ResourceToken,
			ResourceID:   claims.JTI,
			Success:      true,
			Details: map[string]any{
				"token_kind": kind,
			},
		})
	}
}

// VerifyAccess validates a bearer token and returns its claims.
func (s *TokenService) VerifyAccess(tokenString string) (*token.Claims, error) {
	claims, err := s.provider.VerifyAccess(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			s.metrics.RecordTokenValidation("expired")
		} else {
			s.metrics.RecordTokenValidation("invalid")
		}
		return nil, err
	}
	s.metrics.RecordTokenValidation("valid")
	return claims, nil
}

func (s *TokenService) issuePair(
	ctx context.Context,
	user *models.User,
	scopes []models.Scope,
	grantType string,
) (*TokenPair, error) {
	start := time.Now()

	access, err := s.provider.MintAccess(user.Username, user.ID, scopes)
	if err != nil {
		return nil, err
	}
	refresh, err := s.provider.MintRefresh(user.Username, user.ID, scopes)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.metrics.RecordTokenIssued(token.KindAccess, grantType, elapsed)
	s.metrics.RecordTokenIssued(token.KindRefresh, grantType, elapsed)

	if s.audit != nil {
		s.audit.Log(ctx, AuditLogEntry{
			ActorUserID:  user.ID,
			EventType:    models.EventAccessTokenIssued,
			ResourceType: models.ResourceToken,
			ResourceID:   access.JTI,
			Success:      true,
			Details: map[string]any{
				"grant_type": grantType,
				"scope":      models.JoinScopes(scopes),
			},
		})
	}

	return &TokenPair{
		AccessToken:  access.TokenString,
		RefreshToken: refresh.TokenString,
		TokenType:    token.TokenTypeBearer,
		ExpiresIn:    int(time.Until(access.ExpiresAt).Seconds()),
		Scope:        models.JoinScopes(scopes),
		User:         user,
	}, nil
}

// StartRevocationSweeper drops expired entries from the revocation list
// on an interval until the context is cancelled.
func (s *TokenService) StartRevocationSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.revoked.Sweep()
		}
	}
}
