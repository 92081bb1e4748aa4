package util

import (
	"context"

	"github.com/go-creditgate/creditgate/internal/models"

	"github.com/gin-gonic/gin"
)

type contextKey int

const clientIPKey contextKey = iota

// IPMiddleware resolves the client IP once per request and carries it on
// both the gin context and the request context, so services that only
// receive a context.Context can still attribute audit entries.
func IPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		c.Set("client_ip", ip)
		c.Request = c.Request.WithContext(SetIPContext(c.Request.Context(), ip))
		c.Next()
	}
}

// SetIPContext returns a context carrying the client IP.
func SetIPContext(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetIPFromContext extracts the client IP from a gin context or from a
// request context populated by IPMiddleware.
func GetIPFromContext(ctx context.Context) string {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		return ginCtx.ClientIP()
	}
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}

// GetUsernameFromContext extracts the username of the user the gate
// placed on the gin context. Empty for unauthenticated requests and for
// plain request contexts.
func GetUsernameFromContext(ctx context.Context) string {
	ginCtx, ok := ctx.(*gin.Context)
	if !ok {
		return ""
	}
	userVal, exists := ginCtx.Get("user")
	if !exists {
		return ""
	}
	user, ok := userVal.(*models.User)
	if !ok {
		return ""
	}
	return user.Username
}
