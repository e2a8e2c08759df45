package domain

import "errors"

// ErrorKind is the closed set of business failures an account workflow can report.
// Each kind has a stable wire code; human-readable text lives in Messages.
type ErrorKind int

const (
	KindActivationInvalid ErrorKind = iota + 1
	KindActivationExpired
	KindActivationMissing
	KindPasswordInvalid
	KindPasswordMismatch
	KindWeakPassword
	KindInvalidEmail
	KindInvalidCredentials
	KindTokenInvalid
	KindTokenReplayed
	KindConfirmationInvalid
	KindAlreadyActive
	KindAlreadyExists
	KindResendNotAllowed
	KindMFAAlreadyEnabled
	KindMFANotEnabled
	KindUserNotFound
)

var kindCodes = [...]string{
	KindActivationInvalid:   "activation_id_invalid",
	KindActivationExpired:   "activation_id_expired",
	KindActivationMissing:   "activation_id_missing",
	KindPasswordInvalid:     "password_invalid",
	KindPasswordMismatch:    "password_mismatch",
	KindWeakPassword:        "weak_password",
	KindInvalidEmail:        "invalid_email",
	KindInvalidCredentials:  "invalid_credentials",
	KindTokenInvalid:        "invalid_mfa_token",
	KindTokenReplayed:       "replayed_mfa_token",
	KindConfirmationInvalid: "confirmation_invalid",
	KindAlreadyActive:       "already_active",
	KindAlreadyExists:       "already_exists",
	KindResendNotAllowed:    "resend_not_allowed",
	KindMFAAlreadyEnabled:   "mfa_already_enabled",
	KindMFANotEnabled:       "mfa_not_enabled",
	KindUserNotFound:        "user_not_found",
}

// Code returns the wire identifier of the kind.
func (k ErrorKind) Code() string {
	if k <= 0 || int(k) >= len(kindCodes) {
		return "unknown"
	}
	return kindCodes[k]
}

func (k ErrorKind) String() string { return k.Code() }

// Error is a business failure. Field names the input that caused it, if any.
type Error struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := DefaultMessages.Lookup(e.Kind)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError returns an error of the given kind attached to a form field.
func NewError(kind ErrorKind, field string) *Error {
	return &Error{Kind: kind, Field: field}
}

// WrapError returns an error of the given kind carrying an underlying cause.
func WrapError(kind ErrorKind, field string, err error) *Error {
	return &Error{Kind: kind, Field: field, Err: err}
}

// KindOf extracts the kind of a business error; ok is false for infrastructure errors.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// FieldOf returns the form field a business error is attached to.
func FieldOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}

// Activation errors
var (
	ErrActivationInvalid = &Error{Kind: KindActivationInvalid}
	ErrActivationExpired = &Error{Kind: KindActivationExpired}
	ErrActivationMissing = &Error{Kind: KindActivationMissing}
)

// Account errors
var (
	ErrPasswordInvalid    = &Error{Kind: KindPasswordInvalid}
	ErrPasswordMismatch   = &Error{Kind: KindPasswordMismatch}
	ErrWeakPassword       = &Error{Kind: KindWeakPassword}
	ErrInvalidEmail       = &Error{Kind: KindInvalidEmail}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrAlreadyActive      = &Error{Kind: KindAlreadyActive}
	ErrAlreadyExists      = &Error{Kind: KindAlreadyExists}
	ErrResendNotAllowed   = &Error{Kind: KindResendNotAllowed}
	ErrUserNotFound       = &Error{Kind: KindUserNotFound}
)

// MFA errors
var (
	ErrTokenInvalid        = &Error{Kind: KindTokenInvalid}
	ErrTokenReplayed       = &Error{Kind: KindTokenReplayed}
	ErrConfirmationInvalid = &Error{Kind: KindConfirmationInvalid}
	ErrMFAAlreadyEnabled   = &Error{Kind: KindMFAAlreadyEnabled}
	ErrMFANotEnabled       = &Error{Kind: KindMFANotEnabled}
)

// Storage lookups that found nothing. Repositories return these; services translate
// them into business errors.
var (
	ErrNotFound             = errors.New("record not found")
	ErrActivationIDNotFound = errors.New("activation id not found")
	ErrMFARecordNotFound    = errors.New("mfa record not found")
	ErrMFATokenConsumed     = errors.New("mfa token already consumed")
)
