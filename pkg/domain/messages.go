package domain

// Messages maps error kinds to user-facing text. A table is built once and never
// mutated afterwards; use NewMessages to apply overrides.
type Messages struct {
	text map[ErrorKind]string
}

var defaultText = map[ErrorKind]string{
	KindActivationInvalid:   "The activation id is invalid.",
	KindActivationExpired:   "The activation id has expired.",
	KindActivationMissing:   "An activation id was not provided.",
	KindPasswordInvalid:     "Your password was entered incorrectly.",
	KindPasswordMismatch:    "The two password fields didn't match.",
	KindWeakPassword:        "The password does not meet the requirements.",
	KindInvalidEmail:        "Enter a valid email address.",
	KindInvalidCredentials:  "Please enter a correct email and password.",
	KindTokenInvalid:        "The MFA token you entered is not correct.",
	KindTokenReplayed:       "The MFA token you entered has already been used. Please wait and enter the next value shown in your authenticator app.",
	KindConfirmationInvalid: "The confirmation text you entered is not correct.",
	KindAlreadyActive:       "This account is already active.",
	KindAlreadyExists:       "An account with this email address already exists.",
	KindResendNotAllowed:    "Resending the registration email is not allowed.",
	KindMFAAlreadyEnabled:   "Multi-factor authentication is already enabled.",
	KindMFANotEnabled:       "Multi-factor authentication is not enabled.",
	KindUserNotFound:        "No account was found for this email address.",
}

// DefaultMessages is the table without overrides.
var DefaultMessages = NewMessages(nil)

// NewMessages copies the default table and applies non-empty overrides.
func NewMessages(overrides map[ErrorKind]string) Messages {
	text := make(map[ErrorKind]string, len(defaultText))
	for k, v := range defaultText {
		text[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			text[k] = v
		}
	}
	return Messages{text: text}
}

// Lookup returns the message for a kind.
func (m Messages) Lookup(kind ErrorKind) string {
	if msg, ok := m.text[kind]; ok {
		return msg
	}
	return "An unexpected error occurred."
}
