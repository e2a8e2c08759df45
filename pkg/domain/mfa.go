package domain

import (
	"time"

	"github.com/google/uuid"
)

// MFARecord is an enrolled TOTP second factor. Its presence means MFA is enabled.
type MFARecord struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Secret            string  // base32 seed, AES-256-GCM encrypted when a key is configured
	LastConsumedToken *string // anti-replay value
	CreatedAt         time.Time
}

// MFAEnrollment is shown to the user while enrolling; nothing is persisted yet.
type MFAEnrollment struct {
	Secret          string // base32 seed, resubmitted with the confirmation
	ProvisioningURI string // otpauth:// URI
	QRCodeDataURI   string // data:image/png;base64,...
}
