package store

import "errors"

var (
	// ErrUsernameConflict is returned when a username already exists
	ErrUsernameConflict = errors.New("username already exists")

	// ErrEmailConflict is returned when an email address already exists
	ErrEmailConflict = errors.New("email already exists")
)
