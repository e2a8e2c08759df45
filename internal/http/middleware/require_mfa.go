package middleware

import (
	"net/http"

	"github.com/tendant/simple-idm-accounts/internal/httputil"
)

// RequireMFA rejects tokens that were issued without an MFA step. A token
// issued before the user enabled MFA carries mfa_verified=false and has to be
// replaced by signing in again. Must be used after Auth.
func RequireMFA() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !claims.MFAVerified {
				httputil.Error(w, http.StatusForbidden, "sign in again with your MFA token to continue")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
