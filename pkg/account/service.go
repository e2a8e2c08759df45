// Package account sequences the registration, activation, password and MFA
// workflows on top of the auth engines and emits a notification after every
// successful transition.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-accounts/pkg/auth"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// UserStore persists users.
type UserStore interface {
	CreateWithActivation(ctx context.Context, user *domain.User, a *domain.ActivationID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

// Notifier receives account events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// Config holds workflow switches.
type Config struct {
	EmailMaxLength      int
	AllowEmailResend    bool
	IgnoreAlreadyActive bool // debug only
}

// Service is the account workflow orchestrator.
type Service struct {
	config      Config
	users       UserStore
	activations *auth.ActivationService
	mfa         *auth.MFAService
	sessions    *auth.SessionService
	policy      *auth.PasswordPolicy
	notifier    Notifier
	logger      *slog.Logger

	// Now is the service clock.
	Now func() time.Time
}

// NewService creates a new account service. notifier may be nil.
func NewService(
	config Config,
	users UserStore,
	activations *auth.ActivationService,
	mfa *auth.MFAService,
	sessions *auth.SessionService,
	policy *auth.PasswordPolicy,
	notifier Notifier,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:      config,
		users:       users,
		activations: activations,
		mfa:         mfa,
		sessions:    sessions,
		policy:      policy,
		notifier:    notifier,
		logger:      logger,
		Now:         time.Now,
	}
}

// RegisterInput is a registration form.
type RegisterInput struct {
	Email     string
	Password1 string
	Password2 string
}

// PasswordResetInput completes a password reset.
type PasswordResetInput struct {
	ActivationID string
	NewPassword1 string
	NewPassword2 string
	MFAToken     string
}

// PasswordChangeInput changes the password of a signed in user.
type PasswordChangeInput struct {
	OldPassword  string
	NewPassword1 string
	NewPassword2 string
	MFAToken     string
}

// LoginInput authenticates a user.
type LoginInput struct {
	Email    string
	Password string
	MFAToken string
}

// EnableMFAInput confirms an MFA enrollment.
type EnableMFAInput struct {
	Secret   string
	Token    string
	Password string
}

// DisableMFAInput removes an MFA enrollment.
type DisableMFAInput struct {
	Confirmation string
	Password     string
}

// Register creates an inactive user and sends the activation id. An inactive
// user with the same email fails with ErrAlreadyExists, an active one with
// ErrAlreadyActive unless re-registration of active users is allowed.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email, err := s.cleanEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckPair("password1", in.Password1, "password2", in.Password2); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.IsActive && s.config.IgnoreAlreadyActive:
		s.logger.Warn("re-registering active user", "user_id", existing.ID)
		a, err := s.activations.IssueOrRefresh(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		s.notify(ctx, domain.EventUserRegistration, existing.Email, a.Value)
		return existing, nil
	case err == nil && existing.IsActive:
		return nil, domain.NewError(domain.KindAlreadyActive, "email")
	case err == nil:
		return nil, domain.NewError(domain.KindAlreadyExists, "email")
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password1)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a := s.activations.New(user.ID)

	if err := s.users.CreateWithActivation(ctx, user, a); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	s.notify(ctx, domain.EventUserRegistration, user.Email, a.Value)
	return user, nil
}

// ConfirmRegistration activates the user holding the activation id and
// consumes it.
func (s *Service) ConfirmRegistration(ctx context.Context, activationID string) (*domain.User, error) {
	if activationID == "" {
		return nil, domain.NewError(domain.KindActivationMissing, "activation_id")
	}

	a, err := s.activations.ValidateRegistration(ctx, activationID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, a.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewError(domain.KindActivationInvalid, "activation_id")
	}
	if err != nil {
		return nil, err
	}

	if user.IsActive && !s.config.IgnoreAlreadyActive {
		return nil, domain.NewError(domain.KindAlreadyActive, "activation_id")
	}

	if err := s.users.SetActive(ctx, user.ID, true); err != nil {
		return nil, err
	}
	user.IsActive = true

	if err := s.activations.Complete(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("user activated", "user_id", user.ID)
	s.notify(ctx, domain.EventUserRegistrationConfirmed, user.Email, "")
	return user, nil
}

// ResendRegistration sends the registration email again with a refreshed
// activation id. Expired ids are revived by the refresh.
func (s *Service) ResendRegistration(ctx context.Context, email string) error {
	if !s.config.AllowEmailResend {
		return domain.NewError(domain.KindResendNotAllowed, "")
	}

	email, err := s.cleanEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewError(domain.KindUserNotFound, "email")
	}
	if err != nil {
		return err
	}
	if user.IsActive {
		return domain.NewError(domain.KindAlreadyActive, "email")
	}

	a, err := s.activations.IssueOrRefresh(ctx, user.ID)
	if err != nil {
		return err
	}

	s.notify(ctx, domain.EventResendRegistrationEmail, user.Email, a.Value)
	return nil
}

// RequestPasswordReset sends a password reset email. Unknown and inactive
// addresses succeed without sending anything.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := s.cleanEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		s.logger.Debug("password reset requested for inactive user", "user_id", user.ID)
		return nil
	}

	a, err := s.activations.IssueOrRefresh(ctx, user.ID)
	if err != nil {
		return err
	}

	s.notify(ctx, domain.EventPasswordResetRequest, user.Email, a.Value)
	return nil
}

// ConfirmPasswordReset sets a new password for the holder of a password reset
// activation id.
func (s *Service) ConfirmPasswordReset(ctx context.Context, in PasswordResetInput) error {
	if in.ActivationID == "" {
		return domain.NewError(domain.KindActivationMissing, "activation_id")
	}

	a, err := s.activations.ValidatePasswordReset(ctx, in.ActivationID)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, a.UserID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !user.IsActive) {
		return domain.NewError(domain.KindActivationInvalid, "activation_id")
	}
	if err != nil {
		return err
	}

	if err := s.policy.CheckPair("new_password1", in.NewPassword1, "new_password2", in.NewPassword2); err != nil {
		return err
	}
	if _, err := s.checkMFA(ctx, user.ID, in.MFAToken); err != nil {
		return err
	}

	if err := s.setPassword(ctx, user.ID, in.NewPassword1); err != nil {
		return err
	}
	if err := s.activations.Complete(ctx, a); err != nil {
		return err
	}

	s.logger.Info("password reset", "user_id", user.ID)
	s.notify(ctx, domain.EventPasswordChanged, user.Email, "")
	return nil
}

// ChangePassword replaces the password of a signed in user.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, in PasswordChangeInput) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if !auth.VerifyPassword(in.OldPassword, user.PasswordHash) {
		return domain.NewError(domain.KindPasswordInvalid, "old_password")
	}
	if err := s.policy.CheckPair("new_password1", in.NewPassword1, "new_password2", in.NewPassword2); err != nil {
		return err
	}
	if _, err := s.checkMFA(ctx, user.ID, in.MFAToken); err != nil {
		return err
	}

	if err := s.setPassword(ctx, user.ID, in.NewPassword1); err != nil {
		return err
	}

	s.logger.Info("password changed", "user_id", user.ID)
	s.notify(ctx, domain.EventPasswordChanged, user.Email, "")
	return nil
}

// Login authenticates an active user, runs the MFA step and issues an access
// token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*domain.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, auth.NormalizeEmail(in.Email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewError(domain.KindInvalidCredentials, "")
	}
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(in.Password, user.PasswordHash) || !user.IsActive {
		return nil, domain.NewError(domain.KindInvalidCredentials, "")
	}

	verified, err := s.checkMFA(ctx, user.ID, in.MFAToken)
	if err != nil {
		return nil, err
	}

	return s.sessions.IssueSession(user, verified)
}

// User returns the user with the given id.
func (s *Service) User(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.getUser(ctx, userID)
}

// PasswordRequirements describes the configured password policy.
func (s *Service) PasswordRequirements() string {
	if s.policy == nil {
		return ""
	}
	return s.policy.GetRequirements()
}

// MFAStatus reports whether the user has MFA enabled.
func (s *Service) MFAStatus(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.mfa.Enabled(ctx, userID)
}

// BeginMFAEnrollment returns a new enrollment for a user without MFA.
func (s *Service) BeginMFAEnrollment(ctx context.Context, userID uuid.UUID, resubmitted string) (*domain.MFAEnrollment, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMFA(ctx, userID, false); err != nil {
		return nil, err
	}
	return s.mfa.BeginEnrollment(ctx, user, resubmitted)
}

// EnableMFA confirms an enrollment started with BeginMFAEnrollment.
func (s *Service) EnableMFA(ctx context.Context, userID uuid.UUID, in EnableMFAInput) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.requireMFA(ctx, userID, false); err != nil {
		return err
	}

	if _, err := s.mfa.ConfirmEnrollment(ctx, user, in.Secret, in.Token, in.Password); err != nil {
		return err
	}

	s.logger.Info("MFA enabled", "user_id", user.ID)
	s.notify(ctx, domain.EventMFAEnabled, user.Email, "")
	return nil
}

// DisableMFA removes the user's MFA enrollment.
func (s *Service) DisableMFA(ctx context.Context, userID uuid.UUID, in DisableMFAInput) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.requireMFA(ctx, userID, true); err != nil {
		return err
	}

	if err := s.mfa.Disable(ctx, user, in.Confirmation, in.Password); err != nil {
		return err
	}

	s.logger.Info("MFA disabled", "user_id", user.ID)
	s.notify(ctx, domain.EventMFADisabled, user.Email, "")
	return nil
}

// checkMFA runs the optional MFA step. Users with MFA must supply a valid
// code. A code supplied by a user without MFA is still validated and fails.
func (s *Service) checkMFA(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	enabled, err := s.mfa.Enabled(ctx, userID)
	if err != nil {
		return false, err
	}
	if !enabled && code == "" {
		return false, nil
	}
	if err := s.mfa.ValidateToken(ctx, userID, code); err != nil {
		return false, err
	}
	return enabled, nil
}

func (s *Service) requireMFA(ctx context.Context, userID uuid.UUID, want bool) error {
	enabled, err := s.mfa.Enabled(ctx, userID)
	if err != nil {
		return err
	}
	switch {
	case enabled && !want:
		return domain.NewError(domain.KindMFAAlreadyEnabled, "")
	case !enabled && want:
		return domain.NewError(domain.KindMFANotEnabled, "")
	}
	return nil
}

func (s *Service) getUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewError(domain.KindUserNotFound, "")
	}
	return user, err
}

func (s *Service) setPassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (s *Service) cleanEmail(email string) (string, error) {
	email = auth.NormalizeEmail(email)
	if err := auth.ValidateEmail(email, s.config.EmailMaxLength); err != nil {
		return "", err
	}
	return email, nil
}

func (s *Service) notify(ctx context.Context, kind domain.EventKind, email, activationID string) {
	if s.notifier == nil {
		return
	}
	event := domain.Event{
		Kind:         kind,
		Email:        email,
		ActivationID: activationID,
		OccurredAt:   s.Now(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Error("failed to send notification", "kind", kind, "error", err)
	}
}
