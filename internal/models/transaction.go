package models

import (
	"time"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TransactionUsage        TransactionKind = "usage" // metered call charge, negative amount
	TransactionBonus        TransactionKind = "bonus" // signup or promotional grant
	TransactionPurchase     TransactionKind = "purchase"
	TransactionRefund       TransactionKind = "refund"
	TransactionAdjustment   TransactionKind = "adjustment"
	TransactionSubscription TransactionKind = "subscription"
)

// CreditTransaction is an append-only ledger row. Amount is signed:
// deductions are negative, credits positive. BalanceAfter records the
// user's balance immediately after this row was applied, so for any
// consecutive pair of rows belonging to one user
// BalanceAfter(n) = BalanceAfter(n-1) + Amount(n).
type CreditTransaction struct {
	ID     string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID int64           `gorm:"index;not null"              json:"user_id"`
	Kind   TransactionKind `gorm:"type:varchar(20);not null"   json:"kind"`

	Amount       int64 `gorm:"not null" json:"amount"`
	BalanceAfter int64 `gorm:"not null" json:"balance_after"`

	// Usage context for deductions
	RequestID   string `gorm:"type:varchar(64);index" json:"request_id,omitempty"`
	Model       string `gorm:"type:varchar(100)"      json:"model,omitempty"`
	TotalTokens int    `json:"total_tokens,omitempty"`
	Estimated   bool   `json:"estimated,omitempty"` // usage was reconstructed, not reported
	Description string `gorm:"type:varchar(255)"    json:"description,omitempty"`

	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
