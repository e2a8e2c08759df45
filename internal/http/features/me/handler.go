// Package me serves the signed in user's profile and password.
package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-accounts/internal/http/middleware"
	"github.com/tendant/simple-idm-accounts/internal/httputil"
	"github.com/tendant/simple-idm-accounts/pkg/account"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// Accounts is the part of the account service used here.
type Accounts interface {
	User(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	MFAStatus(ctx context.Context, userID uuid.UUID) (bool, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, in account.PasswordChangeInput) error
}

// Handler handles user profile endpoints.
type Handler struct {
	logger   *slog.Logger
	accounts Accounts
	messages domain.Messages
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, accounts Accounts, messages domain.Messages) *Handler {
	return &Handler{logger: logger, accounts: accounts, messages: messages}
}

// UserResponse represents the user profile response.
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	IsActive   bool   `json:"is_active"`
	MFAEnabled bool   `json:"mfa_enabled"`
}

// GetMe returns the current user's profile.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.accounts.User(r.Context(), userID)
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "failed to get user")
		return
	}
	enabled, err := h.accounts.MFAStatus(r.Context(), userID)
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "failed to get user")
		return
	}

	httputil.JSON(w, http.StatusOK, UserResponse{
		ID:         user.ID.String(),
		Email:      user.Email,
		IsActive:   user.IsActive,
		MFAEnabled: enabled,
	})
}

// ChangePasswordRequest represents a password change.
type ChangePasswordRequest struct {
	OldPassword  string `json:"old_password" validate:"required"`
	NewPassword1 string `json:"new_password1" validate:"required"`
	NewPassword2 string `json:"new_password2" validate:"required"`
	MFAToken     string `json:"mfa_token"`
}

// ChangePassword handles POST /v1/me/password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.accounts.ChangePassword(r.Context(), userID, account.PasswordChangeInput{
		OldPassword:  req.OldPassword,
		NewPassword1: req.NewPassword1,
		NewPassword2: req.NewPassword2,
		MFAToken:     req.MFAToken,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "failed to change password")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Your password has been changed."})
}
