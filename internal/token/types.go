package token

import (
	"time"

	"github.com/go-creditgate/creditgate/internal/models"
)

// Token type constants
const (
	TokenTypeBearer = "Bearer"
)

// Token kind claim values. The kind is part of the signed payload so an
// access token can never pass where a refresh token is expected.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Result holds a freshly minted token
type Result struct {
	TokenString string
	TokenType   string
	ExpiresAt   time.Time
	JTI         string
}

// Claims holds the verified contents of a token
type Claims struct {
	Subject   string // login name
	UserID    int64
	Scopes    []models.Scope
	Kind      string
	JTI       string
	ExpiresAt time.Time
}
