package devicecode

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-creditgate/creditgate/internal/models"
	"github.com/go-creditgate/creditgate/internal/util"
)

// MemoryStore keeps pending device authorizations in process memory.
// Entries are indexed twice, by a digest of the device code and by the
// normalized user code; a single mutex guards both maps so they can
// never disagree. Consumed entries leave a tombstone keyed by user code
// until the original deadline so a late approval click can be told apart
// from a code that never existed.
type MemoryStore struct {
	mu       sync.Mutex
	byDevice map[string]*Entry // key: SHA-256 of the device code
	byUser   map[string]*Entry // key: normalized user code
	consumed map[string]time.Time

	ttl      time.Duration
	interval int // seconds
}

// NewMemoryStore creates an empty store. ttl bounds entry lifetime,
// interval is the polling interval advised to clients.
func NewMemoryStore(ttl time.Duration, interval int) *MemoryStore {
	return &MemoryStore{
		byDevice: make(map[string]*Entry),
		byUser:   make(map[string]*Entry),
		consumed: make(map[string]time.Time),
		ttl:      ttl,
		interval: interval,
	}
}

// Issue creates a pending entry with freshly generated codes
func (m *MemoryStore) Issue(scopes []models.Scope) (*Entry, error) {
	// 20 random bytes = 40 hex chars, never displayed to a human
	codeBytes, err := util.CryptoRandomBytes(20)
	if err != nil {
		return nil, fmt.Errorf("failed to generate device code: %w", err)
	}
	deviceCode := hex.EncodeToString(codeBytes)

	m.mu.Lock()
	defer m.mu.Unlock()

	userCode, err := generateUserCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user code: %w", err)
	}
	for i := 0; i < 5; i++ {
		_, live := m.byUser[userCode]
		_, dead := m.consumed[userCode]
		if !live && !dead {
			break
		}
		userCode, err = generateUserCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate user code: %w", err)
		}
	}

	now := time.Now()
	entry := &Entry{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		Scopes:     scopes,
		Status:     StatusPending,
		ExpiresAt:  now.Add(m.ttl),
		Interval:   m.interval,
		CreatedAt:  now,
	}

	m.byDevice[util.SHA256Hex(deviceCode)] = entry
	m.byUser[userCode] = entry

	copied := *entry
	return &copied, nil
}

// Inspect resolves a user code for display
func (m *MemoryStore) Inspect(userCode string) (*Entry, error) {
	key := NormalizeUserCode(userCode)

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.byUser[key]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.IsExpired() {
		m.evictLocked(entry)
		return nil, ErrExpired
	}

	copied := *entry
	copied.DeviceCode = "" // never expose the secret on the verify path
	return &copied, nil
}

// Authorize binds a pending entry to the approving user
func (m *MemoryStore) Authorize(userCode string, userID int64) error {
	key := NormalizeUserCode(userCode)

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.byUser[key]
	if !ok {
		if _, wasConsumed := m.consumed[key]; wasConsumed {
			return ErrConflict
		}
		return ErrNotFound
	}
	if entry.IsExpired() {
		m.evictLocked(entry)
		return ErrExpired
	}
	if entry.Status == StatusAuthorized {
		// re-approval is harmless
		return nil
	}

	entry.UserID = userID
	entry.Status = StatusAuthorized
	return nil
}

// Consume finishes the flow for an authorized entry
func (m *MemoryStore) Consume(deviceCode string) (*Entry, error) {
	// Validate shape before touching the index (40 hex characters)
	if len(deviceCode) != 40 {
		return nil, ErrNotFound
	}
	for _, x := range []byte(deviceCode) {
		if x < '0' || (x > '9' && x < 'a') || x > 'f' {
			return nil, ErrNotFound
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.byDevice[util.SHA256Hex(deviceCode)]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.IsExpired() {
		m.evictLocked(entry)
		return nil, ErrExpired
	}

	now := time.Now()
	if !entry.lastPoll.IsZero() && now.Sub(entry.lastPoll) < time.Duration(entry.Interval)*time.Second {
		entry.lastPoll = now
		return nil, ErrSlowDown
	}
	entry.lastPoll = now

	if entry.Status == StatusPending {
		return nil, ErrAuthorizationPending
	}

	m.evictLocked(entry)
	m.consumed[entry.UserCode] = entry.ExpiresAt
	entry.Status = StatusConsumed

	copied := *entry
	return &copied, nil
}

// Sweep evicts entries and tombstones past their deadline
func (m *MemoryStore) Sweep() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, entry := range m.byUser {
		if now.After(entry.ExpiresAt) {
			m.evictLocked(entry)
			removed++
		}
	}
	for userCode, deadline := range m.consumed {
		if now.After(deadline) {
			delete(m.consumed, userCode)
		}
	}
	return removed
}

// Stats reports current entry counts for gauges
func (m *MemoryStore) Stats() (total, pending int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total = len(m.byUser)
	for _, entry := range m.byUser {
		if entry.Status == StatusPending {
			pending++
		}
	}
	return total, pending
}

// evictLocked removes an entry from both indices; callers hold m.mu.
func (m *MemoryStore) evictLocked(entry *Entry) {
	delete(m.byDevice, util.SHA256Hex(entry.DeviceCode))
	delete(m.byUser, entry.UserCode)
}

// NormalizeUserCode uppercases a typed code and strips the display dash
func NormalizeUserCode(userCode string) string {
	return strings.ToUpper(strings.ReplaceAll(userCode, "-", ""))
}
