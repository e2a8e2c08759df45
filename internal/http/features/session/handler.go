// Package session ends browser sessions.
package session

import (
	"net/http"

	"github.com/tendant/simple-idm-accounts/internal/httputil"
)

// Handler handles session endpoints.
type Handler struct {
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{cookieConfig: cookieConfig}
}

// Logout clears the access token cookie.
// POST /v1/accounts/logout
//
// Access tokens are stateless; mobile clients simply drop theirs.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !httputil.IsMobileClient(r) {
		httputil.ClearAccessTokenCookie(w, h.cookieConfig)
	}
	w.WriteHeader(http.StatusNoContent)
}
