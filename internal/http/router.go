package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-idm-accounts/internal/config"
	"github.com/tendant/simple-idm-accounts/internal/http/features/email"
	"github.com/tendant/simple-idm-accounts/internal/http/features/me"
	"github.com/tendant/simple-idm-accounts/internal/http/features/mfa"
	"github.com/tendant/simple-idm-accounts/internal/http/features/password"
	"github.com/tendant/simple-idm-accounts/internal/http/features/session"
	"github.com/tendant/simple-idm-accounts/internal/http/middleware"
	"github.com/tendant/simple-idm-accounts/internal/httputil"
	"github.com/tendant/simple-idm-accounts/pkg/account"
	"github.com/tendant/simple-idm-accounts/pkg/auth"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger         *slog.Logger
	Accounts       *account.Service
	SessionService *auth.SessionService
	Messages       domain.Messages
	RateLimit      config.RateLimitConfig
	HTTP           config.HTTPConfig
	CookieSecure   bool // Secure flag on cookies, true behind HTTPS
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.HTTP))
	if cfg.HTTP.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSizeLimit(cfg.HTTP.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limiters := middleware.CreateRateLimiters(cfg.RateLimit, cfg.Logger)
	requireAuth := middleware.Auth(cfg.SessionService)

	cookies := httputil.DefaultCookieConfig()
	cookies.Secure = cfg.CookieSecure

	passwordHandler := password.NewHandler(cfg.Logger, cfg.Accounts, cfg.Messages, cookies)
	emailHandler := email.NewHandler(cfg.Logger, cfg.Accounts, cfg.Messages)
	sessionHandler := session.NewHandler(cookies)
	meHandler := me.NewHandler(cfg.Logger, cfg.Accounts, cfg.Messages)
	mfaHandler := mfa.NewHandler(cfg.Logger, cfg.Accounts, cfg.Messages)

	r.Route("/v1/accounts", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiters[middleware.LimitAuth])
			r.Post("/register", passwordHandler.Register)
			r.Post("/login", passwordHandler.Login)
		})
		r.Group(func(r chi.Router) {
			r.Use(limiters[middleware.LimitVerify])
			r.Get("/register/confirm", emailHandler.ConfirmRegistration)
			r.Post("/register/confirm", emailHandler.ConfirmRegistration)
			r.Post("/register/resend", emailHandler.ResendRegistration)
		})
		r.Group(func(r chi.Router) {
			r.Use(limiters[middleware.LimitReset])
			r.Post("/password/reset-request", passwordHandler.RequestPasswordReset)
			r.Post("/password/reset", passwordHandler.ResetPassword)
		})
		r.Get("/password/policy", passwordHandler.Policy)
		r.Post("/logout", sessionHandler.Logout)
	})

	r.Route("/v1/me", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(limiters[middleware.LimitProfile])
		r.Get("/", meHandler.GetMe)
		r.Post("/password", meHandler.ChangePassword)
		r.Get("/mfa", mfaHandler.Status)
		r.Post("/mfa/setup", mfaHandler.Setup)
		r.Post("/mfa/enable", mfaHandler.Enable)
		r.With(middleware.RequireMFA()).Post("/mfa/disable", mfaHandler.Disable)
	})

	return r
}
