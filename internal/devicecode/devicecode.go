package devicecode

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/go-creditgate/creditgate/internal/models"
)

// Status tracks an entry through the device authorization lifecycle.
// Transitions: pending -> authorized -> consumed, or any state -> expired
// once the deadline passes.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusConsumed   Status = "consumed"
	StatusExpired    Status = "expired"
)

// Entry is one device authorization attempt. The device code is the
// client-held secret; the user code is the short form a human types in.
type Entry struct {
	DeviceCode string
	UserCode   string // normalized, no dash
	Scopes     []models.Scope
	Status     Status
	UserID     int64 // bound identity, set on authorize
	ExpiresAt  time.Time
	Interval   int // advised polling interval in seconds
	CreatedAt  time.Time

	lastPoll time.Time // last Consume attempt, drives slow_down
}

// IsExpired reports whether the entry is past its deadline.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// SecondsRemaining returns the whole seconds left before expiry, never
// negative.
func (e *Entry) SecondsRemaining() int {
	remaining := time.Until(e.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

// Store manages the lifecycle of device authorization attempts. Both
// codes of an entry always resolve to the same entry, and removal always
// drops both index entries together.
type Store interface {
	// Issue creates a pending entry with freshly generated codes. The
	// caller passes scopes already filtered against the allow-list.
	Issue(scopes []models.Scope) (*Entry, error)

	// Inspect resolves a user code for display. Expired entries are
	// evicted and reported as ErrExpired.
	Inspect(userCode string) (*Entry, error)

	// Authorize binds a pending entry to the approving user. Approving
	// an already-authorized entry is a no-op success; an entry that was
	// already consumed fails with ErrConflict.
	Authorize(userCode string, userID int64) error

	// Consume finishes the flow for an authorized entry, removing it
	// from both indices atomically. A pending entry fails with
	// ErrAuthorizationPending; polling faster than the advised interval
	// fails with ErrSlowDown. Of two concurrent calls on the same code
	// exactly one receives the entry; the other gets ErrNotFound.
	Consume(deviceCode string) (*Entry, error)

	// Sweep evicts entries past their deadline and returns how many
	// were removed. Driven by a periodic background job.
	Sweep() int

	// Stats reports current entry counts for gauges.
	Stats() (total, pending int)
}

// userCodeCharset avoids confusing characters: 0, O, 1, I, L
const userCodeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// generateUserCode creates a user-friendly code like "ABCDEFGH",
// displayed as "ABCD-EFGH"
func generateUserCode() (string, error) {
	code := make([]byte, 8)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(userCodeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = userCodeCharset[n.Int64()]
	}
	return string(code), nil
}

// FormatUserCode formats a user code for display (e.g., "ABCDEFGH" -> "ABCD-EFGH")
func FormatUserCode(code string) string {
	if len(code) != 8 {
		return code
	}
	return code[:4] + "-" + code[4:]
}
