package email

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

type stubAccounts struct {
	err       error
	confirmed string
	resent    string
}

func (s *stubAccounts) ConfirmRegistration(ctx context.Context, activationID string) (*domain.User, error) {
	s.confirmed = activationID
	if s.err != nil {
		return nil, s.err
	}
	return &domain.User{ID: uuid.New(), Email: "alice@example.com", IsActive: true}, nil
}

func (s *stubAccounts) ResendRegistration(ctx context.Context, email string) error {
	s.resent = email
	return s.err
}

func TestConfirmRegistration(t *testing.T) {
	t.Run("link", func(t *testing.T) {
		stub := &stubAccounts{}
		h := NewHandler(slog.Default(), stub, domain.DefaultMessages)

		rec := httptest.NewRecorder()
		h.ConfirmRegistration(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/register/confirm?id=abc", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "abc", stub.confirmed)
	})

	t.Run("form post", func(t *testing.T) {
		stub := &stubAccounts{}
		h := NewHandler(slog.Default(), stub, domain.DefaultMessages)

		rec := httptest.NewRecorder()
		body := bytes.NewBufferString(`{"activation_id":"xyz"}`)
		h.ConfirmRegistration(rec, httptest.NewRequest(http.MethodPost, "/v1/accounts/register/confirm", body))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "xyz", stub.confirmed)
	})

	t.Run("expired", func(t *testing.T) {
		h := NewHandler(slog.Default(), &stubAccounts{err: domain.NewError(domain.KindActivationExpired, "activation_id")}, domain.DefaultMessages)

		rec := httptest.NewRecorder()
		h.ConfirmRegistration(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/register/confirm?id=abc", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "activation_id_expired")
	})
}

func TestResendRegistration(t *testing.T) {
	stub := &stubAccounts{}
	h := NewHandler(slog.Default(), stub, domain.DefaultMessages)

	rec := httptest.NewRecorder()
	h.ResendRegistration(rec, httptest.NewRequest(http.MethodPost, "/v1/accounts/register/resend", bytes.NewBufferString(`{"email":"alice@example.com"}`)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "alice@example.com", stub.resent)

	stub.err = domain.NewError(domain.KindResendNotAllowed, "")
	rec = httptest.NewRecorder()
	h.ResendRegistration(rec, httptest.NewRequest(http.MethodPost, "/v1/accounts/register/resend", bytes.NewBufferString(`{"email":"alice@example.com"}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
