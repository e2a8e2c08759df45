package domain

import "time"

// EventKind names an account notification.
type EventKind string

const (
	EventUserRegistration          EventKind = "user_registration"
	EventUserRegistrationConfirmed EventKind = "user_registration_confirmed"
	EventResendRegistrationEmail   EventKind = "resend_registration_email"
	EventPasswordResetRequest      EventKind = "password_reset_request"
	EventPasswordChanged           EventKind = "password_changed"
	EventMFAEnabled                EventKind = "mfa_enabled"
	EventMFADisabled               EventKind = "mfa_disabled"
)

// Event is emitted after a successful account transition.
type Event struct {
	Kind         EventKind `json:"kind"`
	Email        string    `json:"email"`
	ActivationID string    `json:"activation_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
