package mfa

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
	MFAStatus(ctx context.Context, userID uuid.UUID) (bool, error)
	BeginMFAEnrollment(ctx context.Context, userID uuid.UUID, resubmitted string) (*domain.MFAEnrollment, error)
	EnableMFA(ctx context.Context, userID uuid.UUID, in account.EnableMFAInput) error
	DisableMFA(ctx context.Context, userID uuid.UUID, in account.DisableMFAInput) error
}

// Handler handles MFA-related HTTP requests
type Handler struct {
	logger   *slog.Logger
	accounts Accounts
	messages domain.Messages
}

// NewHandler creates a new MFA handler
func NewHandler(logger *slog.Logger, accounts Accounts, messages domain.Messages) *Handler {
	return &Handler{logger: logger, accounts: accounts, messages: messages}
}

// StatusResponse represents the response body for MFA status
type StatusResponse struct {
	Enabled bool `json:"enabled"`
}

// Status handles GET /v1/me/mfa
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	enabled, err := h.accounts.MFAStatus(r.Context(), userID)
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "failed to get MFA status")
		return
	}

	httputil.JSON(w, http.StatusOK, StatusResponse{Enabled: enabled})
}

// SetupRequest may carry the secret of an earlier setup call so a failed
// confirmation does not force the user to scan a new QR code.
type SetupRequest struct {
	Secret string `json:"secret"`
}

// SetupResponse represents the response body for MFA setup
type SetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"`
}

// Setup handles POST /v1/me/mfa/setup. Nothing is stored until Enable.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SetupRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}

	enrollment, err := h.accounts.BeginMFAEnrollment(r.Context(), userID, req.Secret)
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "failed to setup MFA")
		return
	}

	httputil.JSON(w, http.StatusOK, SetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		QRCode:          enrollment.QRCodeDataURI,
	})
}

// EnableRequest represents the request body for enabling MFA
type EnableRequest struct {
	Secret   string `json:"secret" validate:"required"`
	MFAToken string `json:"mfa_token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Enable handles POST /v1/me/mfa/enable
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req EnableRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.accounts.EnableMFA(r.Context(), userID, account.EnableMFAInput{
		Secret:   req.Secret,
		Token:    req.MFAToken,
		Password: req.Password,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "failed to enable MFA")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "MFA enabled successfully"})
}

// DisableRequest represents the request body for disabling MFA
type DisableRequest struct {
	Confirmation string `json:"confirmation" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

// Disable handles POST /v1/me/mfa/disable
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DisableRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.accounts.DisableMFA(r.Context(), userID, account.DisableMFAInput{
		Confirmation: req.Confirmation,
		Password:     req.Password,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, h.messages, err, "failed to disable MFA")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "MFA disabled"})
}
