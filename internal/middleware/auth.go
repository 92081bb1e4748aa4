package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Context keys set by the gate
const (
	ContextUserKey          = "user"
	ContextScopesKey        = "scopes"
	ContextBypassCreditsKey = "bypass_credits"
	SessionUserIDKey        = "user_id"
)

// Gate authenticates the request through exactly one of three paths:
// a bearer access token, the static operator token, or a browser
// session. A bearer header, when present, is authoritative; the session
// is only consulted without one.
func Gate(
	cfg *config.Config,
	users *services.UserService,
	tokens *services.TokenService,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader != "" {
			bearer, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(c, "invalid_token", "Authorization header must use the Bearer scheme")
				return
			}

			if cfg.OperatorToken != "" &&
				subtle.ConstantTimeCompare([]byte(bearer), []byte(cfg.OperatorToken)) == 1 {
				gateOperator(c, users, cfg)
				return
			}

			gateBearer(c, users, tokens, bearer)
			return
		}

		gateSession(c, users)
	}
}

func gateBearer(c *gin.Context, users *services.UserService, tokens *services.TokenService, bearer string) {
	claims, err := tokens.VerifyAccess(bearer)
	if err != nil {
		unauthorized(c, "invalid_token", "access token is invalid or expired")
		return
	}

	user, err := users.GetByID(claims.UserID)
	if err != nil {
		unauthorized(c, "user_not_found", "token subject no longer exists")
		return
	}

	c.Set(ContextUserKey, user)
	c.Set(ContextScopesKey, claims.Scopes)
	c.Set(ContextBypassCreditsKey, false)
	c.Next()
}

func gateOperator(c *gin.Context, users *services.UserService, cfg *config.Config) {
	// The operator token maps onto the seeded admin account
	user, err := users.GetByUsername("admin")
	if err != nil {
		unauthorized(c, "user_not_found", "operator account is not provisioned")
		return
	}

	c.Set(ContextUserKey, user)
	c.Set(ContextScopesKey, models.AllScopes())
	c.Set(ContextBypassCreditsKey, cfg.OperatorBypassCredits)
	c.Next()
}

func gateSession(c *gin.Context, users *services.UserService) {
	session := sessions.Default(c)
	uid, ok := session.Get(SessionUserIDKey).(int64)
	if !ok {
		unauthorized(c, "unauthorized", "authentication required")
		return
	}

	user, err := users.GetByID(uid)
	if err != nil {
		unauthorized(c, "user_not_found", "session user no longer exists")
		return
	}

	c.Set(ContextUserKey, user)
	c.Set(ContextScopesKey, models.DefaultScopes())
	c.Set(ContextBypassCreditsKey, false)
	c.Next()
}

func unauthorized(c *gin.Context, code, description string) {
	c.Header("WWW-Authenticate", `Bearer realm="CreditGate"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             code,
		"error_description": description,
	})
}

// RequireScope rejects requests whose token does not carry the scope.
func RequireScope(scope models.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, _ := c.Get(ContextScopesKey)
		granted, _ := scopes.([]models.Scope)
		if !models.HasScope(granted, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "insufficient_scope",
				"error_description": "token does not grant " + string(scope),
			})
			return
		}
		c.Next()
	}
}

// RequireCredits runs the balance pre-check before a metered call. The
// operator bypass skips it; everyone else needs at least one credit.
func RequireCredits(ledger *services.LedgerService, audit *services.AuditService, m core.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextBypassCreditsKey) {
			c.Next()
			return
		}

		user := UserFromContext(c)
		if user == nil {
			unauthorized(c, "unauthorized", "authentication required")
			return
		}

		ok, err := ledger.HasSufficientBalance(user.ID, 1)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "server_error",
			})
			return
		}
		if !ok {
			balance, _ := ledger.GetBalance(user.ID)
			m.RecordInsufficientCredits()
			if audit != nil {
				audit.Log(c.Request.Context(), services.AuditLogEntry{
					ActorUserID:  user.ID,
					EventType:    models.EventInsufficientCredit,
					ResourceType: models.ResourceLedger,
					Success:      false,
				})
			}
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error": gin.H{
					"message":  "insufficient credits",
					"type":     "insufficient_credits",
					"balance":  balance,
					"required": 1,
				},
			})
			return
		}
		c.Next()
	}
}

// UserFromContext returns the authenticated user placed by the gate.
func UserFromContext(c *gin.Context) *models.User {
	val, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	user, _ := val.(*models.User)
	return user
}
