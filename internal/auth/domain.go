package auth

import "time"

// User represents an authenticated user account. Role grants live in the
// authz package; this type only carries what login needs.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FullName     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
