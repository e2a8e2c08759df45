package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// ActivationStore persists activation ids.
type ActivationStore interface {
	Upsert(ctx context.Context, a *domain.ActivationID) error
	GetByValue(ctx context.Context, value string) (*domain.ActivationID, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ActivationConfig holds activation windows and debug switches.
type ActivationConfig struct {
	RegistrationWindow  time.Duration
	PasswordResetWindow time.Duration
	IgnoreExpired       bool
	DoNotDelete         bool
}

// ActivationService issues, validates and consumes single-use activation ids
// for registration and password reset confirmation.
type ActivationService struct {
	config ActivationConfig
	store  ActivationStore
	logger *slog.Logger

	// Now is the service clock.
	Now func() time.Time
}

// NewActivationService creates a new activation service.
func NewActivationService(config ActivationConfig, store ActivationStore, logger *slog.Logger) *ActivationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivationService{
		config: config,
		store:  store,
		logger: logger,
		Now:    time.Now,
	}
}

// New builds a fresh, unsaved activation id for a user.
func (s *ActivationService) New(userID uuid.UUID) *domain.ActivationID {
	return &domain.ActivationID{
		ID:        uuid.New(),
		UserID:    userID,
		Value:     uuid.NewString(),
		CreatedAt: s.Now(),
	}
}

// IssueOrRefresh gives the user a usable activation id. An existing record is
// updated in place with a new value and timestamp, so a user never holds more
// than one.
func (s *ActivationService) IssueOrRefresh(ctx context.Context, userID uuid.UUID) (*domain.ActivationID, error) {
	a := s.New(userID)
	if err := s.store.Upsert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to issue activation id: %w", err)
	}
	return a, nil
}

// Validate looks up an activation id by value and checks it against window.
// A record is expired only when created strictly before now minus window.
func (s *ActivationService) Validate(ctx context.Context, value string, window time.Duration, allowExpired bool) (*domain.ActivationID, error) {
	if value == "" {
		return nil, domain.NewError(domain.KindActivationInvalid, "activation_id")
	}

	a, err := s.store.GetByValue(ctx, value)
	if errors.Is(err, domain.ErrActivationIDNotFound) {
		return nil, domain.NewError(domain.KindActivationInvalid, "activation_id")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up activation id: %w", err)
	}

	if a.ExpiredAt(s.Now(), window) {
		if !allowExpired {
			return nil, domain.NewError(domain.KindActivationExpired, "activation_id")
		}
		s.logger.Warn("accepting expired activation id", "user_id", a.UserID)
	}

	return a, nil
}

// Consume deletes a used activation id unless doNotDelete is set.
func (s *ActivationService) Consume(ctx context.Context, a *domain.ActivationID, doNotDelete bool) error {
	if doNotDelete {
		s.logger.Warn("activation id retained after use", "user_id", a.UserID)
		return nil
	}
	if err := s.store.Delete(ctx, a.ID); err != nil {
		return fmt.Errorf("failed to consume activation id: %w", err)
	}
	return nil
}

// ValidateRegistration validates a registration confirmation value.
func (s *ActivationService) ValidateRegistration(ctx context.Context, value string) (*domain.ActivationID, error) {
	return s.Validate(ctx, value, s.config.RegistrationWindow, s.config.IgnoreExpired)
}

// ValidatePasswordReset validates a password reset confirmation value.
func (s *ActivationService) ValidatePasswordReset(ctx context.Context, value string) (*domain.ActivationID, error) {
	return s.Validate(ctx, value, s.config.PasswordResetWindow, s.config.IgnoreExpired)
}

// Complete consumes an activation id using the configured retention switch.
func (s *ActivationService) Complete(ctx context.Context, a *domain.ActivationID) error {
	return s.Consume(ctx, a, s.config.DoNotDelete)
}
