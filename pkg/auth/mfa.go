package auth

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

const (
	// TOTP parameters
	totpPeriod = 30

	// DefaultSecretLength is the base32 length of a 20 byte secret.
	DefaultSecretLength = 32
	// DefaultTokenLength is the number of digits in a code.
	DefaultTokenLength = 6

	qrCodeSize = 200
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// MFAStore persists TOTP records.
type MFAStore interface {
	Create(ctx context.Context, rec *domain.MFARecord) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.MFARecord, error)
	UpdateLastConsumedToken(ctx context.Context, id uuid.UUID, token string) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

// MFAConfig contains configuration for the MFA service
type MFAConfig struct {
	Issuer              string // e.g., "Simple IDM"
	FixedSecret         string // debug only; used for every enrollment
	AcceptAnyValue      bool   // debug only; skips code checks
	EncryptionKey       []byte // 32 bytes for AES-256, nil stores secrets as is
	DisableConfirmation string
	SecretLength        int
	TokenLength         int
}

// MFAService enrolls, validates and disables TOTP second factors.
type MFAService struct {
	config MFAConfig
	store  MFAStore
	logger *slog.Logger

	// Now is the service clock.
	Now func() time.Time
}

// NewMFAService creates a new MFA service
func NewMFAService(config MFAConfig, store MFAStore, logger *slog.Logger) *MFAService {
	if config.SecretLength == 0 {
		config.SecretLength = DefaultSecretLength
	}
	if config.TokenLength == 0 {
		config.TokenLength = DefaultTokenLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MFAService{
		config: config,
		store:  store,
		logger: logger,
		Now:    time.Now,
	}
}

// Enabled reports whether the user has an MFA record.
func (s *MFAService) Enabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := s.store.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrMFARecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BeginEnrollment prepares a secret, provisioning URI and QR code for the user.
// Nothing is persisted. A configured fixed secret wins over a resubmitted one,
// which wins over a freshly generated one.
func (s *MFAService) BeginEnrollment(ctx context.Context, user *domain.User, resubmitted string) (*domain.MFAEnrollment, error) {
	opts := totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      s.digits(),
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  uint(s.config.SecretLength * 5 / 8),
	}

	switch {
	case s.config.FixedSecret != "":
		raw, err := decodeSecret(s.config.FixedSecret)
		if err != nil {
			return nil, fmt.Errorf("invalid fixed MFA secret: %w", err)
		}
		opts.Secret = raw
	case resubmitted != "" && s.validSecret(resubmitted):
		raw, _ := decodeSecret(resubmitted)
		opts.Secret = raw
	}

	key, err := totp.Generate(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	// Generate QR code
	var qrBuf bytes.Buffer
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code image: %w", err)
	}
	if err := png.Encode(&qrBuf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &domain.MFAEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeDataURI:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrBuf.Bytes()),
	}, nil
}

// ConfirmEnrollment persists a new MFA record once the user has re-entered
// their password and proved possession of secret with a current code. The
// password is checked before the code.
func (s *MFAService) ConfirmEnrollment(ctx context.Context, user *domain.User, secret, code, password string) (*domain.MFARecord, error) {
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, domain.NewError(domain.KindPasswordInvalid, "password")
	}

	secret = strings.ToUpper(strings.TrimSpace(secret))
	if !s.validSecret(secret) {
		return nil, domain.NewError(domain.KindTokenInvalid, "secret")
	}

	var consumed *string
	if s.config.AcceptAnyValue {
		s.logger.Warn("MFA accepting any value", "user_id", user.ID)
	} else {
		if !s.codeMatches(secret, code) {
			return nil, domain.NewError(domain.KindTokenInvalid, "mfa_token")
		}
		consumed = &code
	}

	stored, err := s.encryptSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	rec := &domain.MFARecord{
		ID:                uuid.New(),
		UserID:            user.ID,
		Secret:            stored,
		LastConsumedToken: consumed,
		CreatedAt:         s.Now(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ValidateToken checks code against the user's current TOTP value and rejects
// the code that was accepted last. On success the code becomes the new
// anti-replay value.
func (s *MFAService) ValidateToken(ctx context.Context, userID uuid.UUID, code string) error {
	if s.config.AcceptAnyValue {
		s.logger.Warn("MFA accepting any value", "user_id", userID)
		return nil
	}

	rec, err := s.store.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrMFARecordNotFound) {
		return domain.NewError(domain.KindTokenInvalid, "mfa_token")
	}
	if err != nil {
		return fmt.Errorf("failed to get MFA record: %w", err)
	}

	secret, err := s.decryptSecret(rec.Secret)
	if err != nil {
		return fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	if !s.codeMatches(secret, code) {
		return domain.NewError(domain.KindTokenInvalid, "mfa_token")
	}
	if rec.LastConsumedToken != nil && *rec.LastConsumedToken == code {
		return domain.NewError(domain.KindTokenReplayed, "mfa_token")
	}

	err = s.store.UpdateLastConsumedToken(ctx, rec.ID, code)
	if errors.Is(err, domain.ErrMFATokenConsumed) {
		return domain.NewError(domain.KindTokenReplayed, "mfa_token")
	}
	if err != nil {
		return fmt.Errorf("failed to record consumed token: %w", err)
	}
	return nil
}

// Disable removes the user's MFA record after the password and the typed
// confirmation phrase both check out. The record is untouched on failure.
func (s *MFAService) Disable(ctx context.Context, user *domain.User, phrase, password string) error {
	if !VerifyPassword(password, user.PasswordHash) {
		return domain.NewError(domain.KindPasswordInvalid, "password")
	}
	if phrase != s.config.DisableConfirmation {
		return domain.NewError(domain.KindConfirmationInvalid, "confirmation")
	}
	if err := s.store.DeleteByUserID(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to disable MFA: %w", err)
	}
	return nil
}

// codeMatches compares code with the value for the current step only.
func (s *MFAService) codeMatches(secret, code string) bool {
	if len(code) != s.config.TokenLength {
		return false
	}
	expected, err := totp.GenerateCodeCustom(secret, s.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    s.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1
}

func (s *MFAService) digits() otp.Digits {
	if s.config.TokenLength == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func (s *MFAService) validSecret(secret string) bool {
	if len(secret) != s.config.SecretLength {
		return false
	}
	_, err := decodeSecret(secret)
	return err == nil
}

func decodeSecret(secret string) ([]byte, error) {
	return secretEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
}

// encryptSecret encrypts a plaintext secret using AES-256-GCM
func (s *MFAService) encryptSecret(plaintext string) (string, error) {
	if len(s.config.EncryptionKey) == 0 {
		return plaintext, nil
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptSecret decrypts an encrypted secret using AES-256-GCM
func (s *MFAService) decryptSecret(encrypted string) (string, error) {
	if len(s.config.EncryptionKey) == 0 {
		return encrypted, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func (s *MFAService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.config.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
