package models

import (
	"time"
)

type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"` // Email is unique and required
	PasswordHash string
	Role         string `gorm:"not null;default:'user'"` // "admin" or "user"
	FullName     string // User full name

	// Credit accounting
	CreditBalance int64  `gorm:"not null;default:0"`      // current balance, may go negative
	Plan          string `gorm:"not null;default:'free'"` // billing plan label

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
