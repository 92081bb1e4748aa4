package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/core"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/retry"
	"github.com/go-creditgate/creditgate/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// Request bodies beyond this are rejected before forwarding
	maxRequestBody = 10 << 20

	// Stream lines can carry large data frames
	maxStreamLine = 1 << 20

	modeBuffered = "buffered"
	modeStreamed = "streamed"
)

// chatRequest is the minimal slice of the request the gateway inspects.
// The body is forwarded verbatim; only routing fields are read.
type chatRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// usagePayload mirrors the usage object of an OpenAI-compatible response.
type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Gateway forwards chat completion calls to the upstream provider and
// settles the credit cost exactly once per call.
type Gateway struct {
	config    *config.Config
	ledger    *services.LedgerService
	audit     *services.AuditService
	metrics   core.Recorder
	buffered  *retry.Client
	streaming *http.Client
}

func New(
	cfg *config.Config,
	ledger *services.LedgerService,
	audit *services.AuditService,
	m core.Recorder,
	bufferedClient *retry.Client,
	streamingClient *http.Client,
) *Gateway {
	return &Gateway{
		config:    cfg,
		ledger:    ledger,
		audit:     audit,
		metrics:   m,
		buffered:  bufferedClient,
		streaming: streamingClient,
	}
}

// Proxy forwards a chat completion request for an authenticated user.
// The caller has already passed the credit pre-check.
func (g *Gateway) Proxy(c *gin.Context, user *models.User) {
	requestID := uuid.New().String()
	c.Header("X-Request-ID", requestID)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("failed to read request body", "invalid_request"))
		return
	}
	if len(body) > maxRequestBody {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody("request body too large", "invalid_request"))
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("request body is not valid JSON", "invalid_request"))
		return
	}

	if req.Stream {
		g.proxyStreamed(c, user, requestID, req.Model, body)
		return
	}
	g.proxyBuffered(c, user, requestID, req.Model, body)
}

func (g *Gateway) newUpstreamRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := g.config.UpstreamBaseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.UpstreamAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.UpstreamAPIKey)
	}
	return req, nil
}

func (g *Gateway) proxyBuffered(c *gin.Context, user *models.User, requestID, model string, body []byte) {
	ctx := c.Request.Context()
	start := time.Now()

	req, err := g.newUpstreamRequest(ctx, body)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorBody("failed to build upstream request", "upstream_error"))
		return
	}

	resp, err := g.buffered.Do(ctx, req)
	if err != nil {
		g.metrics.RecordUpstreamCall(modeBuffered, "error", time.Since(start))
		g.failUpstream(c, user, requestID, model, err)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	g.metrics.RecordUpstreamCall(modeBuffered, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		g.failUpstream(c, user, requestID, model, err)
		return
	}

	// Upstream rejections are relayed verbatim and never billed
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.auditUpstreamFailure(c, user, requestID, model, "upstream status "+strconv.Itoa(resp.StatusCode))
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		// A completed call is settled even when the body is unparseable
		settled := g.settle(ctx, user, requestID, model, 0, 1, true)
		c.Header("X-Credits-Used", strconv.FormatInt(settled.Amount, 10))
		c.Header("X-Credits-Remaining", strconv.FormatInt(settled.BalanceAfter, 10))
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
		return
	}

	usage, ok := extractUsage(payload["usage"])
	cost := int64(0)
	estimated := false
	if ok && usage.TotalTokens > 0 {
		cost = g.ledger.CostForTokens(usage.TotalTokens)
	} else {
		cost = g.ledger.CostForTokens(0)
		estimated = true
	}

	settled := g.settle(ctx, user, requestID, model, usage.TotalTokens, cost, estimated)

	credits := map[string]any{
		"used":      settled.Amount,
		"remaining": settled.BalanceAfter,
	}
	if settled.Warning {
		credits["warning"] = true
	}
	payload["_credits"] = credits

	c.JSON(resp.StatusCode, payload)
}

func (g *Gateway) proxyStreamed(c *gin.Context, user *models.User, requestID, model string, body []byte) {
	start := time.Now()

	// Independent cancel scope: the idle watchdog and client disconnect
	// both tear the upstream read down through it
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	req, err := g.newUpstreamRequest(ctx, body)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorBody("failed to build upstream request", "upstream_error"))
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := g.streaming.Do(req)
	if err != nil {
		g.metrics.RecordUpstreamCall(modeStreamed, "error", time.Since(start))
		g.failUpstream(c, user, requestID, model, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxRequestBody))
		g.metrics.RecordUpstreamCall(modeStreamed, strconv.Itoa(resp.StatusCode), time.Since(start))
		g.auditUpstreamFailure(c, user, requestID, model, "upstream status "+strconv.Itoa(resp.StatusCode))
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	watchdog := time.AfterFunc(g.config.UpstreamStreamIdleTimeout, cancel)
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)

	chunks := 0
	usageTokens := 0
	clientGone := false

	for scanner.Scan() {
		watchdog.Reset(g.config.UpstreamStreamIdleTimeout)
		line := scanner.Bytes()

		if data, ok := bytes.CutPrefix(line, []byte("data: ")); ok && !bytes.Equal(data, []byte("[DONE]")) {
			chunks++
			if tokens, found := usageFromFrame(data); found {
				usageTokens = tokens
			}
		}

		if _, err := c.Writer.Write(append(line, '\n')); err != nil {
			clientGone = true
			break
		}
		if len(line) == 0 {
			c.Writer.Flush()
		}
	}
	c.Writer.Flush()

	if err := c.Request.Context().Err(); err != nil {
		clientGone = true
	}
	if clientGone {
		g.metrics.RecordStreamAborted()
	}

	g.metrics.RecordUpstreamCall(modeStreamed, strconv.Itoa(resp.StatusCode), time.Since(start))

	// A stream that never produced a chunk did not complete; nothing to bill
	if chunks == 0 && usageTokens == 0 {
		g.auditUpstreamFailure(c, user, requestID, model, "stream ended without output")
		return
	}

	var cost int64
	estimated := false
	if usageTokens > 0 {
		cost = g.ledger.CostForTokens(usageTokens)
	} else {
		cost = g.ledger.EstimateCostForChunks(chunks)
		estimated = true
	}

	settled := g.settle(c.Request.Context(), user, requestID, model, usageTokens, cost, estimated)

	if !clientGone {
		c.Writer.Header().Set(http.TrailerPrefix+"X-Credits-Used", strconv.FormatInt(settled.Amount, 10))
		c.Writer.Header().Set(http.TrailerPrefix+"X-Credits-Remaining", strconv.FormatInt(settled.BalanceAfter, 10))

		event, _ := json.Marshal(map[string]any{
			"used":      settled.Amount,
			"remaining": settled.BalanceAfter,
		})
		if _, err := c.Writer.Write([]byte("event: credits\ndata: " + string(event) + "\n\n")); err == nil {
			c.Writer.Flush()
		}
	}
}

// settle records the deduction. Runs detached from request cancellation
// so a disconnecting client cannot skip the charge.
func (g *Gateway) settle(
	ctx context.Context,
	user *models.User,
	requestID, model string,
	totalTokens int,
	cost int64,
	estimated bool,
) services.Settlement {
	settleCtx := context.WithoutCancel(ctx)
	settled := g.ledger.Deduct(settleCtx, user.ID, cost, services.DeductOptions{
		RequestID:   requestID,
		Model:       model,
		TotalTokens: totalTokens,
		Estimated:   estimated,
	})
	if settled.Warning {
		log.Printf("[Gateway] Settlement for request %s completed with warning (user=%d cost=%d)",
			requestID, user.ID, cost)
	}
	return settled
}

func (g *Gateway) failUpstream(c *gin.Context, user *models.User, requestID, model string, err error) {
	g.auditUpstreamFailure(c, user, requestID, model, err.Error())

	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, errorBody("upstream call failed", "upstream_error"))
}

func (g *Gateway) auditUpstreamFailure(c *gin.Context, user *models.User, requestID, model, msg string) {
	log.Printf("[Gateway] Upstream call failed for request %s (user=%d model=%s): %s",
		requestID, user.ID, model, msg)
	if g.audit == nil {
		return
	}
	g.audit.Log(c.Request.Context(), services.AuditLogEntry{
		ActorUserID:  user.ID,
		EventType:    models.EventUpstreamCallFailed,
		ResourceType: models.ResourceUpstream,
		ResourceID:   requestID,
		Success:      false,
		ErrorMessage: msg,
		Details: map[string]any{
			"model": model,
		},
	})
}

func errorBody(message, errType string) gin.H {
	return gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
		},
	}
}

// extractUsage pulls the usage object out of a decoded response payload.
func extractUsage(v any) (usagePayload, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return usagePayload{}, false
	}
	var u usagePayload
	if n, ok := obj["prompt_tokens"].(float64); ok {
		u.PromptTokens = int(n)
	}
	if n, ok := obj["completion_tokens"].(float64); ok {
		u.CompletionTokens = int(n)
	}
	if n, ok := obj["total_tokens"].(float64); ok {
		u.TotalTokens = int(n)
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u, true
}

// usageFromFrame reads the usage object from a single SSE data frame.
// Most frames carry a null usage; only the trailing one reports tokens.
func usageFromFrame(data []byte) (int, bool) {
	if !bytes.Contains(data, []byte(`"usage"`)) {
		return 0, false
	}
	var frame struct {
		Usage *usagePayload `json:"usage"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Usage == nil {
		return 0, false
	}
	total := frame.Usage.TotalTokens
	if total == 0 {
		total = frame.Usage.PromptTokens + frame.Usage.CompletionTokens
	}
	if total == 0 {
		return 0, false
	}
	return total, true
}
