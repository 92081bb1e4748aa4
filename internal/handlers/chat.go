package handlers

import (
	"net/http"

	"github.com/go-creditgate/creditgate/internal/gateway"
	"github.com/go-creditgate/creditgate/internal/middleware"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	gateway *gateway.Gateway
}

func NewChatHandler(gw *gateway.Gateway) *ChatHandler {
	return &ChatHandler{gateway: gw}
}

// Completions handles POST /v1/chat/completions, the metered endpoint.
// Authentication, scope and the credit pre-check run in middleware; the
// gateway settles the actual cost after the upstream call.
func (h *ChatHandler) Completions(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	h.gateway.Proxy(c, user)
}
