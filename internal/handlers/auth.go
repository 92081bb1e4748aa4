package handlers

import (
	"errors"
	"net/http"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/middleware"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/services"
	"github.com/go-creditgate/creditgate/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	users   *services.UserService
	tokens  *services.TokenService
	ledger  *services.LedgerService
	audit   *services.AuditService
	metrics core.Recorder
	config  *config.Config
}

func NewAuthHandler(
	us *services.UserService,
	ts *services.TokenService,
	ls *services.LedgerService,
	audit *services.AuditService,
	m core.Recorder,
	cfg *config.Config,
) *AuthHandler {
	return &AuthHandler{
		users:   us,
		tokens:  ts,
		ledger:  ls,
		audit:   audit,
		metrics: m,
		config:  cfg,
	}
}

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// Login handles POST /auth/login. Establishes the browser session used
// to approve device codes.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "username and password are required",
		})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_credentials",
			"error_description": "username or password is incorrect",
		})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserIDKey, user.ID)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		"role":     user.Role,
	})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()

	h.metrics.RecordLogout()
	if h.audit != nil {
		h.audit.Log(c.Request.Context(), services.AuditLogEntry{
			EventType:    models.EventLogout,
			ResourceType: models.ResourceUser,
			Success:      true,
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name"`
}

// Register handles POST /auth/register. New accounts receive the signup
// bonus through the ledger.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameConflict):
			c.JSON(http.StatusConflict, gin.H{
				"error":             "conflict",
				"error_description": "username is already taken",
			})
		case errors.Is(err, store.ErrEmailConflict):
			c.JSON(http.StatusConflict, gin.H{
				"error":             "conflict",
				"error_description": "email is already registered",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"username": user.Username,
		"email":    user.Email,
		"credits":  user.CreditBalance,
	})
}

// Me handles GET /auth/me for any authenticated caller.
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	balance, err := h.ledger.GetBalance(user.ID)
	if err != nil {
		balance = user.CreditBalance
	}

	scopes, _ := c.Get(middleware.ContextScopesKey)
	granted, _ := scopes.([]models.Scope)

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
		"plan":      user.Plan,
		"credits":   balance,
		"scopes":    models.JoinScopes(granted),
	})
}

// Revoke handles POST /auth/revoke with RFC 7009 semantics: the response
// is 200 whether or not the presented token was valid.
func (h *AuthHandler) Revoke(c *gin.Context) {
	tokenString := c.PostForm("token")
	if tokenString == "" {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			tokenString = req.Token
		}
	}

	if tokenString != "" {
		h.tokens.Revoke(c.Request.Context(), tokenString)
	}

	c.Status(http.StatusOK)
}

// History handles GET /auth/credits, the caller's recent ledger entries.
func (h *AuthHandler) History(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	txns, err := h.ledger.GetHistory(user.ID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	balance, err := h.ledger.GetBalance(user.ID)
	if err != nil {
		balance = user.CreditBalance
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":      balance,
		"transactions": txns,
	})
}
