package metrics

import "time"

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NoopMetrics is a no-op implementation of Recorder used when metrics
// collection is disabled. All methods are empty and incur no overhead.
type NoopMetrics struct{}

// NewNoopMetrics creates a new no-op metrics recorder
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordDeviceCodeGenerated(success bool)   {}
func (n *NoopMetrics) RecordDeviceCodeAuthorized()              {}
func (n *NoopMetrics) RecordDeviceCodeValidation(result string) {}

func (n *NoopMetrics) RecordTokenIssued(tokenKind, grantType string, generationTime time.Duration) {
}
func (n *NoopMetrics) RecordTokenRefresh(success bool)     {}
func (n *NoopMetrics) RecordTokenRevoked(tokenKind string) {}
func (n *NoopMetrics) RecordTokenValidation(result string) {}

func (n *NoopMetrics) RecordLogin(success bool) {}
func (n *NoopMetrics) RecordLogout()            {}

func (n *NoopMetrics) RecordCreditsDeducted(amount int64, estimated bool) {}
func (n *NoopMetrics) RecordCreditsCredited(amount int64)                 {}
func (n *NoopMetrics) RecordInsufficientCredits()                         {}
func (n *NoopMetrics) RecordLedgerWriteFailure()                          {}

func (n *NoopMetrics) RecordUpstreamCall(mode, status string, duration time.Duration) {}
func (n *NoopMetrics) RecordStreamAborted()                                           {}

func (n *NoopMetrics) SetActiveDeviceCodesCount(total, pending int) {}
func (n *NoopMetrics) SetRegisteredUsersCount(count int64)          {}
func (n *NoopMetrics) SetLedgerTransactionsCount(count int64)       {}
func (n *NoopMetrics) SetOutstandingCredits(total int64)            {}
func (n *NoopMetrics) RecordDatabaseQueryError(operation string)    {}
