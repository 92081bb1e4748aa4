package core

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Device flow
	RecordDeviceCodeGenerated(success bool)
	RecordDeviceCodeAuthorized()
	RecordDeviceCodeValidation(result string)

	// Token operations
	RecordTokenIssued(tokenKind, grantType string, generationTime time.Duration)
	RecordTokenRefresh(success bool)
	RecordTokenRevoked(tokenKind string)
	RecordTokenValidation(result string)

	// Authentication
	RecordLogin(success bool)
	RecordLogout()

	// Credit ledger
	RecordCreditsDeducted(amount int64, estimated bool)
	RecordCreditsCredited(amount int64)
	RecordInsufficientCredits()
	RecordLedgerWriteFailure()

	// Upstream gateway
	RecordUpstreamCall(mode, status string, duration time.Duration)
	RecordStreamAborted()

	// Gauge Setters (for periodic updates)
	SetActiveDeviceCodesCount(total, pending int)
	SetRegisteredUsersCount(count int64)
	SetLedgerTransactionsCount(count int64)
	SetOutstandingCredits(total int64)

	// Database Operations
	RecordDatabaseQueryError(operation string)
}

// MetricsStore defines the DB operations needed by the metrics cache wrapper.
type MetricsStore interface {
	CountUsers() (int64, error)
	CountTransactions() (int64, error)
	SumOutstandingCredits() (int64, error)
}
