// Package email serves the registration confirmation links.
package email

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-accounts/internal/httputil"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// Accounts is the part of the account service used here.
type Accounts interface {
	ConfirmRegistration(ctx context.Context, activationID string) (*domain.User, error)
	ResendRegistration(ctx context.Context, email string) error
}

// Handler handles registration confirmation endpoints.
type Handler struct {
	logger   *slog.Logger
	accounts Accounts
	messages domain.Messages
}

// NewHandler creates a new email handler.
func NewHandler(logger *slog.Logger, accounts Accounts, messages domain.Messages) *Handler {
	return &Handler{logger: logger, accounts: accounts, messages: messages}
}

// ConfirmRequest carries the activation id from the registration email.
type ConfirmRequest struct {
	ActivationID string `json:"activation_id"`
}

// ConfirmRegistration handles the link from the registration email.
// GET  /v1/accounts/register/confirm?id=...
// POST /v1/accounts/register/confirm
func (h *Handler) ConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	activationID := r.URL.Query().Get("id")
	if r.Method == http.MethodPost {
		var req ConfirmRequest
		if !httputil.Decode(w, r, &req) {
			return
		}
		activationID = req.ActivationID
	}

	user, err := h.accounts.ConfirmRegistration(r.Context(), activationID)
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "registration confirmation failed")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"message":   "Your account is now active.",
		"email":     user.Email,
		"is_active": user.IsActive,
	})
}

// ResendRequest asks for the registration email again.
type ResendRequest struct {
	Email string `json:"email" validate:"required"`
}

// ResendRegistration handles POST /v1/accounts/register/resend.
func (h *Handler) ResendRegistration(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if err := h.accounts.ResendRegistration(r.Context(), req.Email); err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "failed to resend registration email")
		return
	}

	httputil.JSON(w, http.StatusAccepted, map[string]string{"message": "The registration email has been sent again."})
}
