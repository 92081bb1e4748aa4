package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	resultSuccess = "success"
	resultError   = "error"
	resultFailure = "failure"
)

// HTTPMetricsMiddleware creates a Gin middleware that records HTTP metrics
func HTTPMetricsMiddleware(m Recorder) gin.HandlerFunc {
	// If NoopMetrics, return a lightweight middleware that does nothing
	if _, ok := m.(*NoopMetrics); ok {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	// Type assert to concrete Metrics for Prometheus access
	metrics, ok := m.(*Metrics)
	if !ok {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		// Skip metrics endpoint to avoid self-recording
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()

		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		path := normalizePath(c.FullPath()) // Use route pattern, not actual path
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// normalizePath converts the actual request path to route pattern.
// Returns the route pattern (e.g., "/device/verify") or "unknown" if no match.
func normalizePath(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}

// RecordDeviceCodeGenerated records device code generation
func (m *Metrics) RecordDeviceCodeGenerated(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.DeviceCodesTotal.WithLabelValues(result).Inc()
}

// RecordDeviceCodeAuthorized records device code authorization
func (m *Metrics) RecordDeviceCodeAuthorized() {
	m.DeviceCodesAuthorizedTotal.Inc()
}

// RecordDeviceCodeValidation records the outcome of a consumption attempt
func (m *Metrics) RecordDeviceCodeValidation(result string) {
	// result: success, expired, invalid, pending, slow_down
	m.DeviceCodeValidationTotal.WithLabelValues(result).Inc()
}

// RecordTokenIssued records token issuance
func (m *Metrics) RecordTokenIssued(tokenKind, grantType string, generationTime time.Duration) {
	m.TokensIssuedTotal.WithLabelValues(tokenKind, grantType).Inc()
	m.TokenGenerationDuration.Observe(generationTime.Seconds())
}

// RecordTokenRefresh records a token refresh attempt
func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

// RecordTokenRevoked records a token revocation
func (m *Metrics) RecordTokenRevoked(tokenKind string) {
	m.TokensRevokedTotal.WithLabelValues(tokenKind).Inc()
}

// RecordTokenValidation records a token validation outcome
func (m *Metrics) RecordTokenValidation(result string) {
	// result: valid, invalid, expired
	m.TokenValidationTotal.WithLabelValues(result).Inc()
}

// RecordLogin records a login attempt
func (m *Metrics) RecordLogin(success bool) {
	result := resultSuccess
	if !success {
		result = resultFailure
	}
	m.AuthLoginTotal.WithLabelValues(result).Inc()
}

// RecordLogout records a logout
func (m *Metrics) RecordLogout() {
	m.AuthLogoutTotal.Inc()
}

// RecordCreditsDeducted records a settled deduction
func (m *Metrics) RecordCreditsDeducted(amount int64, estimated bool) {
	m.CreditsDeductedTotal.WithLabelValues(strconv.FormatBool(estimated)).Add(float64(amount))
}

// RecordCreditsCredited records a credit grant
func (m *Metrics) RecordCreditsCredited(amount int64) {
	m.CreditsCreditedTotal.Add(float64(amount))
}

// RecordInsufficientCredits records a pre-check rejection
func (m *Metrics) RecordInsufficientCredits() {
	m.InsufficientCreditsTotal.Inc()
}

// RecordLedgerWriteFailure records a settlement that could not be persisted
func (m *Metrics) RecordLedgerWriteFailure() {
	m.LedgerWriteFailuresTotal.Inc()
}

// RecordUpstreamCall records an upstream call outcome
func (m *Metrics) RecordUpstreamCall(mode, status string, duration time.Duration) {
	m.UpstreamCallsTotal.WithLabelValues(mode, status).Inc()
	m.UpstreamCallDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordStreamAborted records a client disconnect mid-stream
func (m *Metrics) RecordStreamAborted() {
	m.StreamsAbortedTotal.Inc()
}

// SetActiveDeviceCodesCount sets the current count of active device codes (for periodic updates)
func (m *Metrics) SetActiveDeviceCodesCount(total, pending int) {
	m.DeviceCodesActive.Set(float64(total))
	m.DeviceCodesPendingAuthorization.Set(float64(pending))
}

// SetRegisteredUsersCount sets the current count of registered users (for periodic updates)
func (m *Metrics) SetRegisteredUsersCount(count int64) {
	m.RegisteredUsersCount.Set(float64(count))
}

// SetLedgerTransactionsCount sets the current count of ledger rows (for periodic updates)
func (m *Metrics) SetLedgerTransactionsCount(count int64) {
	m.LedgerTransactionsCount.Set(float64(count))
}

// SetOutstandingCredits sets the sum of all user balances (for periodic updates)
func (m *Metrics) SetOutstandingCredits(total int64) {
	m.CreditsOutstanding.Set(float64(total))
}

// RecordDatabaseQueryError records a database query error during metric collection
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
