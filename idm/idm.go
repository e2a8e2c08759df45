// Package idm provides a pluggable user account module: registration with
// email activation, password reset and change, and TOTP multi-factor
// authentication.
//
// Setup:
//
//  1. Point Settings at your database; migrations run on New when
//     DBAutoMigrate is set, otherwise apply pkg/repository/migrations yourself
//  2. Create the IDM instance, start its notification loop and mount routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	settings, _ := config.Load() // or build an idm.Settings literal
//	accounts, err := idm.New(idm.Config{DB: db, Settings: settings})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer accounts.Close()
//	go accounts.Run(ctx)
//
//	r := chi.NewRouter()
//	r.Mount("/", accounts.Router())
//	http.ListenAndServe(":8080", r)
//
// With your own delivery of account events:
//
//	accounts, err := idm.New(idm.Config{DB: db, Settings: settings, Notifier: myNotifier})
package idm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-accounts/internal/config"
	httpserver "github.com/tendant/simple-idm-accounts/internal/http"
	"github.com/tendant/simple-idm-accounts/internal/http/middleware"
	"github.com/tendant/simple-idm-accounts/internal/httputil"
	"github.com/tendant/simple-idm-accounts/internal/notification"
	"github.com/tendant/simple-idm-accounts/pkg/account"
	"github.com/tendant/simple-idm-accounts/pkg/auth"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
	"github.com/tendant/simple-idm-accounts/pkg/repository"
)

// Settings is the full module configuration, normally read with config.Load.
type Settings = config.Config

// Config holds the configuration for the IDM library.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// Settings configures every workflow (required).
	Settings *Settings

	// Notifier receives account events (optional). When nil the events are
	// rendered as emails and sent over SMTP, or logged when sending is off.
	Notifier account.Notifier

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// IDM is the main account module instance.
type IDM struct {
	config     Config
	settings   *Settings
	logger     *slog.Logger
	usersRepo  *repository.UsersRepository
	sessions   *auth.SessionService
	accounts   *account.Service
	messages   domain.Messages
	channel    interface{ Close() error }
	dispatcher *notification.Dispatcher
}

// New creates a new IDM instance with the given configuration.
// Returns an error if required database tables don't exist.
func New(cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	s := cfg.Settings

	ctx := context.Background()
	if s.DBAutoMigrate {
		if err := repository.Migrate(ctx, cfg.DB); err != nil {
			return nil, fmt.Errorf("idm: %w", err)
		}
	}
	if err := validateSchema(ctx, cfg.DB); err != nil {
		return nil, err
	}

	encryptionKey, err := s.MFAEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("idm: %w", err)
	}

	i := &IDM{
		config:    cfg,
		settings:  s,
		logger:    cfg.Logger,
		usersRepo: repository.NewUsersRepository(cfg.DB),
		messages: domain.NewMessages(map[domain.ErrorKind]string{
			domain.KindTokenInvalid:  s.MFA.InvalidTokenError,
			domain.KindTokenReplayed: s.MFA.ReplayedTokenError,
		}),
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier, err = i.startNotifications()
		if err != nil {
			return nil, err
		}
	}

	activations := auth.NewActivationService(auth.ActivationConfig{
		RegistrationWindow:  s.Activation.RegistrationWindow(),
		PasswordResetWindow: s.Activation.PasswordResetWindow(),
		IgnoreExpired:       s.Activation.IgnoreExpired,
		DoNotDelete:         s.Activation.DoNotDelete,
	}, repository.NewActivationIDsRepository(cfg.DB), cfg.Logger)

	mfa := auth.NewMFAService(auth.MFAConfig{
		Issuer:              s.MFA.IssuerName,
		FixedSecret:         s.MFA.SecretKey,
		AcceptAnyValue:      s.MFA.AcceptAnyValue,
		EncryptionKey:       encryptionKey,
		DisableConfirmation: s.MFA.DisableConfirmation,
		SecretLength:        s.Fields.MFASecretLength,
		TokenLength:         s.Fields.MFATokenLength,
	}, repository.NewMFARecordsRepository(cfg.DB), cfg.Logger)

	i.sessions = auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL: s.AccessTokenTTL,
		JWTSecret:      []byte(s.JWTSecret),
		Issuer:         s.JWTIssuer,
	})

	i.accounts = account.NewService(account.Config{
		EmailMaxLength:      s.Fields.EmailMaxLength,
		AllowEmailResend:    s.Registration.AllowEmailResend,
		IgnoreAlreadyActive: s.Registration.IgnoreAlreadyActive,
	}, i.usersRepo, activations, mfa, i.sessions, auth.NewPasswordPolicy(s.PasswordPolicy), notifier, cfg.Logger)

	warnDebugSwitches(cfg.Logger, s)
	return i, nil
}

// startNotifications wires the in-process event channel to the email
// dispatcher and returns the publishing side.
func (i *IDM) startNotifications() (account.Notifier, error) {
	composer, err := notification.NewComposer(i.settings.Email, i.settings.AppBaseURL)
	if err != nil {
		return nil, fmt.Errorf("idm: %w", err)
	}

	var sender notification.Sender
	if i.settings.Email.Send {
		mailer, err := notification.NewMailer(i.settings.Email)
		if err != nil {
			return nil, fmt.Errorf("idm: %w", err)
		}
		sender = mailer
		i.logger.Info("email sending enabled", "host", i.settings.Email.SMTPHost, "proxy", i.settings.HasProxy())
	} else {
		sender = notification.NewLogMailer(i.logger)
		i.logger.Info("email sending disabled, messages are logged")
	}

	channel := notification.NewChannel()
	messages, err := notification.Subscribe(channel)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("idm: %w", err)
	}
	i.channel = channel
	i.dispatcher = notification.NewDispatcher(messages, composer, sender, i.logger)
	return notification.NewPublisher(channel), nil
}

// Run delivers account notifications until ctx is cancelled. It returns
// immediately when a custom Notifier was configured.
func (i *IDM) Run(ctx context.Context) error {
	if i.dispatcher == nil {
		return nil
	}
	return i.dispatcher.Run(ctx)
}

// Close releases the notification channel.
func (i *IDM) Close() error {
	if i.channel == nil {
		return nil
	}
	return i.channel.Close()
}

// Router returns a handler with every account route:
//
//	POST /v1/accounts/register              - Register with email/password
//	GET  /v1/accounts/register/confirm      - Confirm with ?id= from the email
//	POST /v1/accounts/register/confirm      - Confirm with {"activation_id"}
//	POST /v1/accounts/register/resend       - Send the registration email again
//	POST /v1/accounts/login                 - Login, with mfa_token when enabled
//	POST /v1/accounts/logout                - Clear the access token cookie
//	POST /v1/accounts/password/reset-request
//	POST /v1/accounts/password/reset
//	GET  /v1/accounts/password/policy
//	GET  /v1/me                             - Current user (protected)
//	POST /v1/me/password                    - Change password (protected)
//	GET  /v1/me/mfa                         - MFA status (protected)
//	POST /v1/me/mfa/setup|enable|disable    - MFA enrollment (protected)
func (i *IDM) Router() http.Handler {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:         i.logger,
		Accounts:       i.accounts,
		SessionService: i.sessions,
		Messages:       i.messages,
		RateLimit:      i.settings.RateLimit,
		HTTP:           i.settings.HTTP,
		CookieSecure:   i.settings.CookieSecure(),
	})
}

// Accounts returns the workflow service for direct use.
func (i *IDM) Accounts() *account.Service {
	return i.accounts
}

// SessionService returns the session service for advanced usage.
func (i *IDM) SessionService() *auth.SessionService {
	return i.sessions
}

// AuthMiddleware returns middleware that validates JWT tokens.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(accounts.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (i *IDM) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(i.sessions)
}

// GetUserID extracts the user ID from a request.
// Use after AuthMiddleware:
//
//	userID, ok := idm.GetUserID(r)
func GetUserID(r *http.Request) (string, bool) {
	id, ok := middleware.GetUserID(r.Context())
	if !ok {
		return "", false
	}
	return id.String(), true
}

// GetUserIDFromContext extracts the user ID from a context.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return middleware.GetUserID(ctx)
}

// User represents basic user info returned by GetUser.
type User struct {
	ID       string
	Email    string
	IsActive bool
}

// GetUser retrieves the current user from the database.
// Use after AuthMiddleware.
func (i *IDM) GetUser(r *http.Request) (*User, error) {
	id, ok := middleware.GetUserID(r.Context())
	if !ok {
		return nil, errors.New("user not authenticated")
	}

	u, err := i.usersRepo.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:       u.ID.String(),
		Email:    u.Email,
		IsActive: u.IsActive,
	}, nil
}

// HealthHandler returns a simple health check handler.
func (i *IDM) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := i.config.DB.PingContext(r.Context()); err != nil {
			httputil.Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Routes registers all account routes on an http.ServeMux under prefix:
//
//	mux := http.NewServeMux()
//	accounts.Routes(mux, "/api")
func (i *IDM) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, i.Router()))
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("idm: DB is required")
	}
	if cfg.Settings == nil {
		return errors.New("idm: Settings is required")
	}
	if len(cfg.Settings.JWTSecret) < 32 {
		return errors.New("idm: JWTSecret must be at least 32 characters")
	}
	if err := cfg.Settings.Fields.ValidateMFA(); err != nil {
		return fmt.Errorf("idm: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

func warnDebugSwitches(logger *slog.Logger, s *Settings) {
	switches := map[string]bool{
		"ACTIVATION_ID_IGNORE_EXPIRED":       s.Activation.IgnoreExpired,
		"ACTIVATION_ID_DO_NOT_DELETE":        s.Activation.DoNotDelete,
		"REGISTRATION_IGNORE_ALREADY_ACTIVE": s.Registration.IgnoreAlreadyActive,
		"MFA_ACCEPT_ANY_VALUE":               s.MFA.AcceptAnyValue,
		"MFA_SECRET_KEY":                     s.MFA.SecretKey != "",
	}
	for name, on := range switches {
		if on {
			logger.Warn("debug switch enabled, do not use in production", "setting", name)
		}
	}
}

// validateSchema checks that required database tables exist.
func validateSchema(ctx context.Context, db *sql.DB) error {
	requiredTables := []string{"users", "activation_ids", "mfa_records"}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRowContext(ctx, query, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("idm: missing table '%s' - run migrations first", table)
		}
		if err != nil {
			return fmt.Errorf("idm: failed to check schema: %w", err)
		}
	}

	return nil
}
