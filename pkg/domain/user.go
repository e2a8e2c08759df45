package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents the account. The email address doubles as the username.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActivationID is a single-use, time-bounded token tied to one user. It gates both
// registration confirmation and password reset confirmation.
type ActivationID struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Value     string
	CreatedAt time.Time
}

// ExpiredAt reports whether the token is past its window at now. A token exactly
// at the boundary is still valid.
func (a *ActivationID) ExpiredAt(now time.Time, window time.Duration) bool {
	return a.CreatedAt.Before(now.Add(-window))
}
