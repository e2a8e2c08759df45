package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-accounts/pkg/auth"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

const password = "s3cret-pass"

type harness struct {
	svc         *Service
	users       *memUsers
	activations *memActivations
	mfa         *memMFA
	notifier    *recordingNotifier
	sessions    *auth.SessionService
	now         time.Time
}

func newHarness(t *testing.T, cfg Config, mfaCfg auth.MFAConfig) *harness {
	t.Helper()
	h := &harness{
		activations: &memActivations{byUser: make(map[uuid.UUID]*domain.ActivationID)},
		mfa:         &memMFA{byUser: make(map[uuid.UUID]*domain.MFARecord)},
		notifier:    &recordingNotifier{},
		now:         time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.users = &memUsers{users: make(map[uuid.UUID]*domain.User), activations: h.activations}
	clock := func() time.Time { return h.now }

	if cfg.EmailMaxLength == 0 {
		cfg.EmailMaxLength = 50
	}
	if mfaCfg.Issuer == "" {
		mfaCfg.Issuer = "Example"
	}
	if mfaCfg.DisableConfirmation == "" {
		mfaCfg.DisableConfirmation = "disable"
	}

	activations := auth.NewActivationService(auth.ActivationConfig{
		RegistrationWindow:  24 * time.Hour,
		PasswordResetWindow: 24 * time.Hour,
	}, h.activations, nil)
	activations.Now = clock

	mfa := auth.NewMFAService(mfaCfg, h.mfa, nil)
	mfa.Now = clock

	h.sessions = auth.NewSessionService(auth.SessionConfig{JWTSecret: []byte("test-secret"), Issuer: "test"})
	h.sessions.Now = clock

	h.svc = NewService(cfg, h.users, activations, mfa, h.sessions, &auth.PasswordPolicy{MinLength: 8}, h.notifier, nil)
	h.svc.Now = clock
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, h.now, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func (h *harness) activeUser(t *testing.T, email string) *domain.User {
	t.Helper()
	ctx := context.Background()
	user, err := h.svc.Register(ctx, RegisterInput{Email: email, Password1: password, Password2: password})
	require.NoError(t, err)
	user, err = h.svc.ConfirmRegistration(ctx, h.activations.forUser(user.ID).Value)
	require.NoError(t, err)
	return user
}

func (h *harness) enableMFA(t *testing.T, user *domain.User) string {
	t.Helper()
	ctx := context.Background()
	enrollment, err := h.svc.BeginMFAEnrollment(ctx, user.ID, "")
	require.NoError(t, err)
	require.NoError(t, h.svc.EnableMFA(ctx, user.ID, EnableMFAInput{
		Secret:   enrollment.Secret,
		Token:    h.code(t, enrollment.Secret),
		Password: password,
	}))
	h.advance(30 * time.Second)
	return enrollment.Secret
}

func TestRegisterAndConfirm(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()

	user, err := h.svc.Register(ctx, RegisterInput{Email: " Alice@Example.com ", Password1: password, Password2: password})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.False(t, user.IsActive)

	a := h.activations.forUser(user.ID)
	require.NotNil(t, a)
	t1 := a.Value

	event := h.notifier.last()
	assert.Equal(t, domain.EventUserRegistration, event.Kind)
	assert.Equal(t, "alice@example.com", event.Email)
	assert.Equal(t, t1, event.ActivationID)

	confirmed, err := h.svc.ConfirmRegistration(ctx, t1)
	require.NoError(t, err)
	assert.True(t, confirmed.IsActive)
	assert.Nil(t, h.activations.forUser(user.ID), "activation id is consumed")
	assert.Equal(t, domain.EventUserRegistrationConfirmed, h.notifier.last().Kind)

	_, err = h.svc.ConfirmRegistration(ctx, t1)
	assert.ErrorIs(t, err, domain.ErrActivationInvalid)
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()

	_, err := h.svc.Register(ctx, RegisterInput{Email: "not-an-email", Password1: password, Password2: password})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = h.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password1: password, Password2: password + "x"})
	assert.ErrorIs(t, err, domain.ErrPasswordMismatch)
	assert.Equal(t, "password2", domain.FieldOf(err))

	_, err = h.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password1: "short", Password2: "short"})
	assert.ErrorIs(t, err, domain.ErrWeakPassword)

	assert.Empty(t, h.notifier.kinds())
}

func TestRegister_ExistingUser(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()
	in := RegisterInput{Email: "bob@example.com", Password1: password, Password2: password}

	user, err := h.svc.Register(ctx, in)
	require.NoError(t, err)

	_, err = h.svc.Register(ctx, in)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = h.svc.ConfirmRegistration(ctx, h.activations.forUser(user.ID).Value)
	require.NoError(t, err)

	_, err = h.svc.Register(ctx, in)
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)
}

func TestRegister_IgnoreAlreadyActive(t *testing.T) {
	h := newHarness(t, Config{IgnoreAlreadyActive: true}, auth.MFAConfig{})
	ctx := context.Background()
	user := h.activeUser(t, "carol@example.com")

	again, err := h.svc.Register(ctx, RegisterInput{Email: "carol@example.com", Password1: password, Password2: password})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	a := h.activations.forUser(user.ID)
	require.NotNil(t, a)
	assert.Equal(t, a.Value, h.notifier.last().ActivationID)

	confirmed, err := h.svc.ConfirmRegistration(ctx, a.Value)
	require.NoError(t, err)
	assert.True(t, confirmed.IsActive)
}

func TestConfirmRegistration_MissingAndExpired(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()

	_, err := h.svc.ConfirmRegistration(ctx, "")
	assert.ErrorIs(t, err, domain.ErrActivationMissing)

	user, err := h.svc.Register(ctx, RegisterInput{Email: "dave@example.com", Password1: password, Password2: password})
	require.NoError(t, err)
	value := h.activations.forUser(user.ID).Value

	h.advance(24*time.Hour + time.Second)
	_, err = h.svc.ConfirmRegistration(ctx, value)
	assert.ErrorIs(t, err, domain.ErrActivationExpired)

	stored, err := h.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestResendRegistration(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, Config{}, auth.MFAConfig{})
	err := h.svc.ResendRegistration(ctx, "erin@example.com")
	assert.ErrorIs(t, err, domain.ErrResendNotAllowed)

	h = newHarness(t, Config{AllowEmailResend: true}, auth.MFAConfig{})
	err = h.svc.ResendRegistration(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	user, err := h.svc.Register(ctx, RegisterInput{Email: "erin@example.com", Password1: password, Password2: password})
	require.NoError(t, err)
	first := h.activations.forUser(user.ID).Value

	h.advance(48 * time.Hour)
	require.NoError(t, h.svc.ResendRegistration(ctx, "erin@example.com"))

	event := h.notifier.last()
	assert.Equal(t, domain.EventResendRegistrationEmail, event.Kind)
	assert.NotEqual(t, first, event.ActivationID)

	_, err = h.svc.ConfirmRegistration(ctx, event.ActivationID)
	require.NoError(t, err, "resend resets the expiry clock")

	err = h.svc.ResendRegistration(ctx, "erin@example.com")
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)
}

func TestRequestPasswordReset_Silent(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()

	require.NoError(t, h.svc.RequestPasswordReset(ctx, "ghost@example.com"))

	_, err := h.svc.Register(ctx, RegisterInput{Email: "inactive@example.com", Password1: password, Password2: password})
	require.NoError(t, err)
	before := len(h.notifier.kinds())
	require.NoError(t, h.svc.RequestPasswordReset(ctx, "inactive@example.com"))
	assert.Len(t, h.notifier.kinds(), before, "no email for inactive users")

	err = h.svc.RequestPasswordReset(ctx, "bad address")
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()
	user := h.activeUser(t, "frank@example.com")

	require.NoError(t, h.svc.RequestPasswordReset(ctx, "frank@example.com"))
	event := h.notifier.last()
	require.Equal(t, domain.EventPasswordResetRequest, event.Kind)

	err := h.svc.ConfirmPasswordReset(ctx, PasswordResetInput{NewPassword1: "new-password", NewPassword2: "new-password"})
	assert.ErrorIs(t, err, domain.ErrActivationMissing)

	err = h.svc.ConfirmPasswordReset(ctx, PasswordResetInput{
		ActivationID: event.ActivationID,
		NewPassword1: "new-password",
		NewPassword2: "other-password",
	})
	assert.ErrorIs(t, err, domain.ErrPasswordMismatch)

	require.NoError(t, h.svc.ConfirmPasswordReset(ctx, PasswordResetInput{
		ActivationID: event.ActivationID,
		NewPassword1: "new-password",
		NewPassword2: "new-password",
	}))
	assert.Equal(t, domain.EventPasswordChanged, h.notifier.last().Kind)
	assert.Nil(t, h.activations.forUser(user.ID))

	_, err = h.svc.Login(ctx, LoginInput{Email: "frank@example.com", Password: password})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = h.svc.Login(ctx, LoginInput{Email: "frank@example.com", Password: "new-password"})
	assert.NoError(t, err)
}

func TestPasswordReset_ExpiredWindow(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()
	h.activeUser(t, "gina@example.com")

	require.NoError(t, h.svc.RequestPasswordReset(ctx, "gina@example.com"))
	value := h.notifier.last().ActivationID

	h.advance(25 * time.Hour)
	err := h.svc.ConfirmPasswordReset(ctx, PasswordResetInput{ActivationID: value, NewPassword1: "new-password", NewPassword2: "new-password"})
	assert.ErrorIs(t, err, domain.ErrActivationExpired)
}

func TestPasswordReset_RequiresMFA(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()
	user := h.activeUser(t, "hank@example.com")
	secret := h.enableMFA(t, user)

	require.NoError(t, h.svc.RequestPasswordReset(ctx, "hank@example.com"))
	in := PasswordResetInput{
		ActivationID: h.notifier.last().ActivationID,
		NewPassword1: "new-password",
		NewPassword2: "new-password",
	}

	err := h.svc.ConfirmPasswordReset(ctx, in)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	in.MFAToken = h.code(t, secret)
	require.NoError(t, h.svc.ConfirmPasswordReset(ctx, in))
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()
	user := h.activeUser(t, "ivy@example.com")

	err := h.svc.ChangePassword(ctx, user.ID, PasswordChangeInput{OldPassword: "wrong", NewPassword1: "new-password", NewPassword2: "new-password"})
	assert.ErrorIs(t, err, domain.ErrPasswordInvalid)
	assert.Equal(t, "old_password", domain.FieldOf(err))

	err = h.svc.ChangePassword(ctx, user.ID, PasswordChangeInput{OldPassword: password, NewPassword1: "new-password", NewPassword2: "new-password", MFAToken: "123456"})
	assert.ErrorIs(t, err, domain.ErrTokenInvalid, "a code without MFA is still checked")

	require.NoError(t, h.svc.ChangePassword(ctx, user.ID, PasswordChangeInput{OldPassword: password, NewPassword1: "new-password", NewPassword2: "new-password"}))
	assert.Equal(t, domain.EventPasswordChanged, h.notifier.last().Kind)

	err = h.svc.ChangePassword(ctx, uuid.New(), PasswordChangeInput{})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestLogin(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()

	_, err := h.svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: password})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = h.svc.Register(ctx, RegisterInput{Email: "jack@example.com", Password1: password, Password2: password})
	require.NoError(t, err)
	_, err = h.svc.Login(ctx, LoginInput{Email: "jack@example.com", Password: password})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials, "inactive users cannot log in")

	user := h.activeUser(t, "kate@example.com")
	_, err = h.svc.Login(ctx, LoginInput{Email: "kate@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	pair, err := h.svc.Login(ctx, LoginInput{Email: "KATE@example.com", Password: password})
	require.NoError(t, err)
	claims, err := h.sessions.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.False(t, claims.MFAVerified)
}

func TestLogin_WithMFA(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()
	user := h.activeUser(t, "liam@example.com")
	secret := h.enableMFA(t, user)

	_, err := h.svc.Login(ctx, LoginInput{Email: "liam@example.com", Password: password})
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	code := h.code(t, secret)
	pair, err := h.svc.Login(ctx, LoginInput{Email: "liam@example.com", Password: password, MFAToken: code})
	require.NoError(t, err)
	claims, err := h.sessions.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.MFAVerified)

	_, err = h.svc.Login(ctx, LoginInput{Email: "liam@example.com", Password: password, MFAToken: code})
	assert.ErrorIs(t, err, domain.ErrTokenReplayed)
}

func TestMFAEnableDisable(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	ctx := context.Background()
	user := h.activeUser(t, "mia@example.com")

	enabled, err := h.svc.MFAStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, enabled)

	err = h.svc.DisableMFA(ctx, user.ID, DisableMFAInput{Confirmation: "disable", Password: password})
	assert.ErrorIs(t, err, domain.ErrMFANotEnabled)

	enrollment, err := h.svc.BeginMFAEnrollment(ctx, user.ID, "")
	require.NoError(t, err)

	err = h.svc.EnableMFA(ctx, user.ID, EnableMFAInput{Secret: enrollment.Secret, Token: h.code(t, enrollment.Secret), Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrPasswordInvalid)

	require.NoError(t, h.svc.EnableMFA(ctx, user.ID, EnableMFAInput{Secret: enrollment.Secret, Token: h.code(t, enrollment.Secret), Password: password}))
	assert.Equal(t, domain.EventMFAEnabled, h.notifier.last().Kind)

	_, err = h.svc.BeginMFAEnrollment(ctx, user.ID, "")
	assert.ErrorIs(t, err, domain.ErrMFAAlreadyEnabled)

	err = h.svc.DisableMFA(ctx, user.ID, DisableMFAInput{Confirmation: "nope", Password: password})
	assert.ErrorIs(t, err, domain.ErrConfirmationInvalid)
	enabled, err = h.svc.MFAStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, h.svc.DisableMFA(ctx, user.ID, DisableMFAInput{Confirmation: "disable", Password: password}))
	assert.Equal(t, domain.EventMFADisabled, h.notifier.last().Kind)
}

func TestLogin_AcceptAnyMFAValue(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{AcceptAnyValue: true})
	ctx := context.Background()
	user := h.activeUser(t, "noah@example.com")

	require.NoError(t, h.svc.EnableMFA(ctx, user.ID, EnableMFAInput{
		Secret:   "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
		Token:    "anything",
		Password: password,
	}))

	_, err := h.svc.Login(ctx, LoginInput{Email: "noah@example.com", Password: password, MFAToken: "000000"})
	assert.NoError(t, err)
	_, err = h.svc.Login(ctx, LoginInput{Email: "noah@example.com", Password: password, MFAToken: "000000"})
	assert.NoError(t, err)
}

func TestNotifierFailureIsNotReturned(t *testing.T) {
	h := newHarness(t, Config{}, auth.MFAConfig{})
	h.notifier.err = errNotifierDown

	_, err := h.svc.Register(context.Background(), RegisterInput{Email: "olga@example.com", Password1: password, Password2: password})
	assert.NoError(t, err)
	assert.Equal(t, []domain.EventKind{domain.EventUserRegistration}, h.notifier.kinds())
}
