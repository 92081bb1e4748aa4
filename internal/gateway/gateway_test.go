package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-creditgate/creditgate/internal/config"
	"github.com/go-creditgate/creditgate/internal/metrics"
	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/retry"
	"github.com/go-creditgate/creditgate/internal/services"
	"github.com/go-creditgate/creditgate/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gatewayFixture struct {
	gateway *Gateway
	store   *store.Store
	ledger  *services.LedgerService
	user    *models.User
}

func setupGateway(t *testing.T, upstreamURL string) *gatewayFixture {
	t.Helper()

	s, err := store.New("sqlite", ":memory:", store.NewOptions{})
	require.NoError(t, err)

	cfg := &config.Config{
		CreditPricePerK:           1,
		StreamChunkEstimate:       2,
		UpstreamBaseURL:           upstreamURL,
		UpstreamAPIKey:            "sk-test",
		UpstreamStreamIdleTimeout: 5 * time.Second,
	}

	recorder := metrics.NewNoopMetrics()
	ledger := services.NewLedgerService(s, cfg, nil, recorder)

	buffered := retry.NewClient(
		retry.WithMaxRetries(0),
		retry.WithInitialRetryDelay(time.Millisecond),
	)

	gw := New(cfg, ledger, nil, recorder, buffered, http.DefaultClient)

	user := &models.User{
		Username:     "caller",
		Email:        "caller@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, s.CreateUser(user))
	_, err = ledger.Credit(context.Background(), user.ID, 100, models.TransactionBonus, "grant")
	require.NoError(t, err)

	return &gatewayFixture{gateway: gw, store: s, ledger: ledger, user: user}
}

func newChatContext(t *testing.T, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte(body)))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func (f *gatewayFixture) transactionCount(t *testing.T) int {
	t.Helper()
	txns, err := f.store.GetTransactionsByUserID(f.user.ID, 0)
	require.NoError(t, err)
	// Discount the initial grant
	return len(txns) - 1
}

func TestBufferedCallBillsReportedUsage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":2000,"completion_tokens":3000,"total_tokens":5000}}`)
	}))
	defer upstream.Close()

	f := setupGateway(t, upstream.URL)
	c, w := newChatContext(t, `{"model":"gpt-4o","messages":[]}`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, http.StatusOK, w.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))

	credits, ok := payload["_credits"].(map[string]any)
	require.True(t, ok, "response must carry a _credits annotation")
	assert.Equal(t, float64(5), credits["used"])
	assert.Equal(t, float64(95), credits["remaining"])

	// Original fields survive the annotation
	assert.Equal(t, "cmpl-1", payload["id"])

	balance, err := f.ledger.GetBalance(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(95), balance)

	txns, err := f.store.GetTransactionsByUserID(f.user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionUsage, txns[0].Kind)
	assert.Equal(t, int64(-5), txns[0].Amount)
	assert.False(t, txns[0].Estimated)
	assert.Equal(t, 5000, txns[0].TotalTokens)
	assert.Equal(t, "gpt-4o", txns[0].Model)
}

func TestBufferedCallWithoutUsageChargesMinimum(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-2","choices":[]}`)
	}))
	defer upstream.Close()

	f := setupGateway(t, upstream.URL)
	c, w := newChatContext(t, `{"model":"gpt-4o"}`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, http.StatusOK, w.Code)

	txns, err := f.store.GetTransactionsByUserID(f.user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), txns[0].Amount)
	assert.True(t, txns[0].Estimated)
}

func TestBufferedUpstreamErrorIsNotBilled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer upstream.Close()

	f := setupGateway(t, upstream.URL)
	c, w := newChatContext(t, `{"model":"nope"}`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bad model")
	assert.Equal(t, 0, f.transactionCount(t))

	balance, err := f.ledger.GetBalance(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestBufferedTransportErrorIsNotBilled(t *testing.T) {
	f := setupGateway(t, "http://127.0.0.1:1")
	c, w := newChatContext(t, `{"model":"gpt-4o"}`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream_error")
	assert.Equal(t, 0, f.transactionCount(t))
}

func TestInvalidJSONRejected(t *testing.T) {
	f := setupGateway(t, "http://127.0.0.1:1")
	c, w := newChatContext(t, `{not json`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, f.transactionCount(t))
}

func streamFrame(id int) string {
	return fmt.Sprintf(`data: {"id":"chunk-%d","choices":[{"delta":{"content":"x"}}],"usage":null}`, id) + "\n\n"
}

func TestStreamedCallBillsTrailingUsage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprint(w, streamFrame(i))
			flusher.Flush()
		}
		fmt.Fprint(w, `data: {"id":"final","choices":[],"usage":{"prompt_tokens":1000,"completion_tokens":2000,"total_tokens":3000}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	f := setupGateway(t, upstream.URL)
	c, w := newChatContext(t, `{"model":"gpt-4o","stream":true}`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	out := w.Body.String()
	assert.Contains(t, out, `"id":"chunk-0"`)
	assert.Contains(t, out, "data: [DONE]")
	assert.Contains(t, out, "event: credits")
	assert.Contains(t, out, `"used":3`)
	assert.Contains(t, out, `"remaining":97`)

	txns, err := f.store.GetTransactionsByUserID(f.user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), txns[0].Amount)
	assert.False(t, txns[0].Estimated)
	assert.Equal(t, 3000, txns[0].TotalTokens)
	assert.Equal(t, 1, f.transactionCount(t))
}

func TestStreamedCallWithoutUsageSettlesEstimate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprint(w, streamFrame(i))
			flusher.Flush()
		}
		// Connection drops without a usage frame or [DONE]
	}))
	defer upstream.Close()

	f := setupGateway(t, upstream.URL)
	c, w := newChatContext(t, `{"model":"gpt-4o","stream":true}`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, http.StatusOK, w.Code)

	// 3 chunks x 2 tokens/chunk = 6 tokens, floors at 1 credit
	txns, err := f.store.GetTransactionsByUserID(f.user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), txns[0].Amount)
	assert.True(t, txns[0].Estimated)
	assert.Equal(t, 1, f.transactionCount(t))
}

func TestStreamedClientDisconnectSettlesOnce(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprint(w, streamFrame(i))
			flusher.Flush()
		}
		// Hold the stream open until the client goes away
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer upstream.Close()
	defer close(release)

	f := setupGateway(t, upstream.URL)
	c, w := newChatContext(t, `{"model":"gpt-4o","stream":true}`)

	ctx, cancel := context.WithCancel(context.Background())
	c.Request = c.Request.WithContext(ctx)

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	f.gateway.Proxy(c, f.user)

	// The relayed chunks were still settled, exactly once
	assert.Equal(t, 1, f.transactionCount(t))

	txns, err := f.store.GetTransactionsByUserID(f.user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), txns[0].Amount)
	assert.True(t, txns[0].Estimated)

	// No credits event is written to a client that already left
	assert.NotContains(t, w.Body.String(), "event: credits")
}

func TestStreamedUpstreamErrorIsNotBilled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
	}))
	defer upstream.Close()

	f := setupGateway(t, upstream.URL)
	c, w := newChatContext(t, `{"model":"gpt-4o","stream":true}`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 0, f.transactionCount(t))
}

func TestStreamedEmptyStreamIsNotBilled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// 200 with no frames at all
	}))
	defer upstream.Close()

	f := setupGateway(t, upstream.URL)
	c, _ := newChatContext(t, `{"model":"gpt-4o","stream":true}`)

	f.gateway.Proxy(c, f.user)

	assert.Equal(t, 0, f.transactionCount(t))
}

func TestUsageFromFrame(t *testing.T) {
	tokens, ok := usageFromFrame([]byte(`{"usage":{"total_tokens":42}}`))
	assert.True(t, ok)
	assert.Equal(t, 42, tokens)

	_, ok = usageFromFrame([]byte(`{"usage":null}`))
	assert.False(t, ok)

	_, ok = usageFromFrame([]byte(`{"choices":[]}`))
	assert.False(t, ok)

	tokens, ok = usageFromFrame([]byte(`{"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	assert.True(t, ok)
	assert.Equal(t, 15, tokens)
}

func TestRequestIDHeaderSet(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"usage":{"total_tokens":100}}`)
	}))
	defer upstream.Close()

	f := setupGateway(t, upstream.URL)
	c, w := newChatContext(t, `{"model":"gpt-4o"}`)

	f.gateway.Proxy(c, f.user)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.False(t, strings.Contains(w.Header().Get("X-Request-ID"), " "))
}
