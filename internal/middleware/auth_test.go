package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/devicecode"
	"github.com/go-creditgate/creditgate/internal/metrics"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/services"
	"github.com/go-creditgate/creditgate/internal/store"
	"github.com/go-creditgate/creditgate/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gateFixture struct {
	router *gin.Engine
	users  *services.UserService
	tokens *services.TokenService
	ledger *services.LedgerService
	cfg    *config.Config
	userID int64
}

func setupGate(t *testing.T) *gateFixture {
	t.Helper()

	s, err := store.New("sqlite", ":memory:", store.NewOptions{})
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:              "test-secret-32-bytes-long-enough",
		TokenIssuer:            "creditgate",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: time.Hour,
		DeviceCodeExpiration:   10 * time.Minute,
		PollingInterval:        5,
		SessionSecret:          "session-secret",
		OperatorToken:          "op-token-abc",
		OperatorBypassCredits:  true,
		CreditPricePerK:        1,
	}

	recorder := metrics.NewNoopMetrics()
	ledger := services.NewLedgerService(s, cfg, nil, recorder)
	users := services.NewUserService(s, cfg, ledger, nil, recorder)
	codes := devicecode.NewMemoryStore(cfg.DeviceCodeExpiration, cfg.PollingInterval)
	devices := services.NewDeviceService(codes, cfg, nil, recorder)
	provider := token.NewProvider(cfg)
	tokens := services.NewTokenService(s, provider, token.NewRevocationList(), devices, nil, recorder)

	user := &models.User{Username: "gated", Email: "gated@example.com", PasswordHash: "x"}
	require.NoError(t, s.CreateUser(user))

	admin := &models.User{Username: "admin", Email: "admin@example.com", PasswordHash: "x", Role: "admin"}
	require.NoError(t, s.CreateUser(admin))

	router := gin.New()
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	router.Use(sessions.Sessions("creditgate_session", sessionStore))

	f := &gateFixture{
		router: router,
		users:  users,
		tokens: tokens,
		ledger: ledger,
		cfg:    cfg,
		userID: user.ID,
	}

	router.GET("/whoami", Gate(cfg, users, tokens), func(c *gin.Context) {
		u := UserFromContext(c)
		c.JSON(http.StatusOK, gin.H{
			"username": u.Username,
			"bypass":   c.GetBool(ContextBypassCreditsKey),
		})
	})
	router.POST("/metered",
		Gate(cfg, users, tokens),
		RequireScope(models.ScopeLLMChat),
		RequireCredits(ledger, nil, recorder),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		},
	)
	router.POST("/session-login", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(SessionUserIDKey, f.userID)
		require.NoError(t, session.Save())
		c.Status(http.StatusNoContent)
	})

	return f
}

func (f *gateFixture) accessToken(t *testing.T, scope string) string {
	t.Helper()
	provider := token.NewProvider(f.cfg)
	result, err := provider.MintAccess("gated", f.userID, models.ParseScopes(scope))
	require.NoError(t, err)
	return result.TokenString
}

func TestGateRejectsAnonymous(t *testing.T) {
	f := setupGate(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestGateAcceptsBearer(t *testing.T) {
	f := setupGate(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+f.accessToken(t, "llm:chat"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gated")
}

func TestGateRejectsGarbageToken(t *testing.T) {
	f := setupGate(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_token")
}

func TestGateRejectsTokenForDeletedUser(t *testing.T) {
	f := setupGate(t)

	provider := token.NewProvider(f.cfg)
	result, err := provider.MintAccess("ghost", 99999, models.DefaultScopes())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+result.TokenString)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "user_not_found")
}

func TestGateAcceptsOperatorToken(t *testing.T) {
	f := setupGate(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer op-token-abc")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")
	assert.Contains(t, w.Body.String(), `"bypass":true`)
}

func TestGateAcceptsSession(t *testing.T) {
	f := setupGate(t)

	login := httptest.NewRecorder()
	f.router.ServeHTTP(login, httptest.NewRequest(http.MethodPost, "/session-login", nil))
	require.Equal(t, http.StatusNoContent, login.Code)
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gated")
}

func TestRequireScopeRejectsMissingScope(t *testing.T) {
	f := setupGate(t)
	_, err := f.ledger.Credit(context.Background(), f.userID, 10, models.TransactionBonus, "grant")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/metered", nil)
	req.Header.Set("Authorization", "Bearer "+f.accessToken(t, "mcp:read"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_scope")
}

func TestRequireCreditsRejectsEmptyBalance(t *testing.T) {
	f := setupGate(t)

	req := httptest.NewRequest(http.MethodPost, "/metered", nil)
	req.Header.Set("Authorization", "Bearer "+f.accessToken(t, "llm:chat"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_credits")
}

func TestRequireCreditsPassesWithBalance(t *testing.T) {
	f := setupGate(t)
	_, err := f.ledger.Credit(context.Background(), f.userID, 10, models.TransactionBonus, "grant")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/metered", nil)
	req.Header.Set("Authorization", "Bearer "+f.accessToken(t, "llm:chat"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOperatorBypassesCreditCheck(t *testing.T) {
	f := setupGate(t)

	// Admin has no credits, but the operator token carries the bypass
	req := httptest.NewRequest(http.MethodPost, "/metered", nil)
	req.Header.Set("Authorization", "Bearer op-token-abc")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsAuth(t *testing.T) {
	router := gin.New()
	router.GET("/metrics", MetricsAuth("mtoken"), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer mtoken")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsAuthOpenWithoutToken(t *testing.T) {
	router := gin.New()
	router.GET("/metrics", MetricsAuth(""), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMemoryRateLimiter(t *testing.T) {
	limiter, err := NewMemoryRateLimiter(2)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/limited", limiter, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}
