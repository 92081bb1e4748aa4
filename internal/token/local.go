package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Provider mints and verifies the two token kinds. Stateless beyond the
// shared signing secret; verification is pure and consults nothing but
// the token itself.
type Provider struct {
	config *config.Config
}

// NewProvider creates a token provider backed by local HS256 signing
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{config: cfg}
}

// mintJWT creates a signed JWT with the given claims and expiration
func (p *Provider) mintJWT(
	subject string,
	userID int64,
	scopes []models.Scope,
	kind string,
	expiresAt time.Time,
) (*Result, error) {
	jti := uuid.New().String()
	claims := jwt.MapClaims{
		"sub":   subject,
		"uid":   userID,
		"scope": models.JoinScopes(scopes),
		"kind":  kind,
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Unix(),
		"iss":   p.config.TokenIssuer,
		"jti":   jti,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(p.config.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	return &Result{
		TokenString: tokenString,
		TokenType:   TokenTypeBearer,
		ExpiresAt:   expiresAt,
		JTI:         jti,
	}, nil
}

// MintAccess creates a short-lived access token
func (p *Provider) MintAccess(subject string, userID int64, scopes []models.Scope) (*Result, error) {
	expiresAt := time.Now().Add(p.config.AccessTokenExpiration)
	return p.mintJWT(subject, userID, scopes, KindAccess, expiresAt)
}

// MintRefresh creates a long-lived refresh token
func (p *Provider) MintRefresh(subject string, userID int64, scopes []models.Scope) (*Result, error) {
	expiresAt := time.Now().Add(p.config.RefreshTokenExpiration)
	return p.mintJWT(subject, userID, scopes, KindRefresh, expiresAt)
}

// VerifyAccess verifies an access token and returns its claims
func (p *Provider) VerifyAccess(tokenString string) (*Claims, error) {
	return p.verify(tokenString, KindAccess, ErrInvalidToken, ErrExpiredToken)
}

// VerifyRefresh verifies a refresh token and returns its claims
func (p *Provider) VerifyRefresh(tokenString string) (*Claims, error) {
	return p.verify(tokenString, KindRefresh, ErrInvalidRefreshToken, ErrExpiredRefreshToken)
}

func (p *Provider) verify(
	tokenString, wantKind string,
	invalidErr, expiredErr error,
) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.config.JWTSecret), nil
	})
	if err != nil {
		// Check if it's an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, expiredErr
		}
		return nil, fmt.Errorf("%w: %v", invalidErr, err)
	}

	if !token.Valid {
		return nil, invalidErr
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, invalidErr
	}

	// The kind claim is signed; a mismatch means the wrong token kind
	// was presented, not a forgery
	kind, _ := claims["kind"].(string)
	if kind != wantKind {
		return nil, invalidErr
	}

	subject, _ := claims["sub"].(string)
	scope, _ := claims["scope"].(string)
	jti, _ := claims["jti"].(string)

	uid, ok := claims["uid"].(float64)
	if !ok {
		return nil, invalidErr
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, invalidErr
	}

	return &Claims{
		Subject:   subject,
		UserID:    int64(uid),
		Scopes:    models.ParseScopes(scope),
		Kind:      kind,
		JTI:       jti,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
