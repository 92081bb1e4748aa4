package token

import (
	"sync"
	"time"
)

// RevocationList is a best-effort in-process denylist of token ids.
// Only the refresh grant consults it: access tokens stay pure-verify and
// simply age out on their short TTL. Entries expire together with the
// token they refer to, so the list stays bounded.
type RevocationList struct {
	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
}

// NewRevocationList creates an empty revocation list
func NewRevocationList() *RevocationList {
	return &RevocationList{revoked: make(map[string]time.Time)}
}

// Revoke records a token id until its natural expiry
func (r *RevocationList) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[jti] = expiresAt
}

// IsRevoked reports whether a token id has been revoked
func (r *RevocationList) IsRevoked(jti string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	deadline, ok := r.revoked[jti]
	if !ok {
		return false
	}
	if time.Now().After(deadline) {
		delete(r.revoked, jti)
		return false
	}
	return true
}

// Sweep drops entries whose tokens have expired anyway and returns how
// many were removed
func (r *RevocationList) Sweep() int {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for jti, deadline := range r.revoked {
		if now.After(deadline) {
			delete(r.revoked, jti)
			removed++
		}
	}
	return removed
}
