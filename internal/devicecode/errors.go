package devicecode

import "errors"

var (
	// ErrNotFound is returned when neither index resolves the given code
	ErrNotFound = errors.New("device code not found")

	// ErrExpired is returned when the entry is past its deadline; the
	// entry is evicted as a side effect
	ErrExpired = errors.New("device code expired")

	// ErrAuthorizationPending is returned by Consume while the entry has
	// not been approved yet; polling clients must treat it as retryable
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrConflict is returned by Authorize when the entry was already
	// consumed by a token exchange
	ErrConflict = errors.New("device code already consumed")

	// ErrSlowDown is returned by Consume when the client polls faster
	// than the advised interval; the entry stays intact
	ErrSlowDown = errors.New("polling too frequently")
)
