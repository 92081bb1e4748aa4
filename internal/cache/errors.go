package cache

import "errors"

var (
	// ErrCacheMiss reports a key that is absent or expired; callers fall
	// back to the source query.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheUnavailable reports that the backend could not be reached.
	ErrCacheUnavailable = errors.New("cache: backend unavailable")

	// ErrInvalidValue reports a stored value that does not decode.
	ErrInvalidValue = errors.New("cache: invalid value")
)
