// Package password serves registration, login and password reset.
package password

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-accounts/internal/httputil"
	"github.com/tendant/simple-idm-accounts/pkg/account"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// Accounts is the part of the account service used here.
type Accounts interface {
	Register(ctx context.Context, in account.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, in account.LoginInput) (*domain.TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, in account.PasswordResetInput) error
	PasswordRequirements() string
}

// Handler handles password authentication endpoints.
type Handler struct {
	logger       *slog.Logger
	accounts     Accounts
	messages     domain.Messages
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, accounts Accounts, messages domain.Messages, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		accounts:     accounts,
		messages:     messages,
		cookieConfig: cookieConfig,
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required"`
	Password1 string `json:"password1" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
}

// UserResponse describes an account.
type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// NewUserResponse converts a user for output.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID.String(), Email: u.Email, IsActive: u.IsActive}
}

// Register handles POST /v1/accounts/register.
// The account stays inactive until the emailed activation id is confirmed.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), account.RegisterInput{
		Email:     req.Email,
		Password1: req.Password1,
		Password2: req.Password2,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "registration failed")
		return
	}

	httputil.JSON(w, http.StatusCreated, NewUserResponse(user))
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	MFAToken string `json:"mfa_token"`
}

// Login handles POST /v1/accounts/login.
//
// For web clients: also sets an HttpOnly access token cookie.
// For mobile clients (X-Client-Type: mobile): the token is only in the body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	tokens, err := h.accounts.Login(r.Context(), account.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		MFAToken: req.MFAToken,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "login failed")
		return
	}

	if !httputil.IsMobileClient(r) {
		httputil.SetAccessTokenCookie(w, tokens.AccessToken, tokens.ExpiresAt, h.cookieConfig)
	}
	httputil.JSON(w, http.StatusOK, tokens)
}

// ResetRequest asks for a password reset email.
type ResetRequest struct {
	Email string `json:"email" validate:"required"`
}

// RequestPasswordReset handles POST /v1/accounts/password/reset-request.
// The reply is the same whether or not the address has an account.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "password reset request failed")
		return
	}

	httputil.JSON(w, http.StatusAccepted, map[string]string{
		"message": "If the address belongs to an active account, a password reset email has been sent.",
	})
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	ActivationID string `json:"activation_id"`
	NewPassword1 string `json:"new_password1" validate:"required"`
	NewPassword2 string `json:"new_password2" validate:"required"`
	MFAToken     string `json:"mfa_token"`
}

// ResetPassword handles POST /v1/accounts/password/reset.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.accounts.ConfirmPasswordReset(r.Context(), account.PasswordResetInput{
		ActivationID: req.ActivationID,
		NewPassword1: req.NewPassword1,
		NewPassword2: req.NewPassword2,
		MFAToken:     req.MFAToken,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "password reset failed")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Your password has been reset."})
}

// Policy handles GET /v1/accounts/password/policy.
func (h *Handler) Policy(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"requirements": h.accounts.PasswordRequirements()})
}
