package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int
	AppBaseURL string

	// Database
	DBHost        string
	DBPort        int
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBAutoMigrate bool

	// JWT
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration

	Activation     ActivationConfig
	Registration   RegistrationConfig
	MFA            MFAConfig
	Fields         FieldsConfig
	PasswordPolicy PasswordPolicyConfig
	Email          EmailConfig
	RateLimit      RateLimitConfig
	HTTP           HTTPConfig
}

// ActivationConfig controls activation id lifetimes.
type ActivationConfig struct {
	RegistrationExpirationDays  int
	PasswordResetExpirationDays int
	IgnoreExpired               bool // debug/test only
	DoNotDelete                 bool // debug/test only
}

// RegistrationWindow returns the registration expiry window.
func (c ActivationConfig) RegistrationWindow() time.Duration {
	return time.Duration(c.RegistrationExpirationDays) * 24 * time.Hour
}

// PasswordResetWindow returns the password reset expiry window.
func (c ActivationConfig) PasswordResetWindow() time.Duration {
	return time.Duration(c.PasswordResetExpirationDays) * 24 * time.Hour
}

// RegistrationConfig controls registration behaviour.
type RegistrationConfig struct {
	AllowEmailResend    bool
	IgnoreAlreadyActive bool // debug/test only
}

// MFAConfig controls TOTP enrollment and validation.
type MFAConfig struct {
	IssuerName          string
	SecretKey           string // fixed secret, debug/test only
	AcceptAnyValue      bool   // debug/test only
	EncryptionKey       string // 64 hex chars, optional
	DisableConfirmation string
	InvalidTokenError   string
	ReplayedTokenError  string
}

// FieldsConfig holds form field lengths.
type FieldsConfig struct {
	EmailMaxLength  int
	MFATokenLength  int
	MFASecretLength int
}

// ValidateMFA checks that the MFA lengths can be generated. Secrets are
// whole bytes in base32, so their length is a multiple of 8 and at least 16.
// Codes have 6 or 8 digits. Zero selects the default.
func (f FieldsConfig) ValidateMFA() error {
	if n := f.MFASecretLength; n != 0 && (n < 16 || n%8 != 0) {
		return fmt.Errorf("MFA_SECRET_LENGTH must be a multiple of 8 and at least 16, got %d", n)
	}
	if n := f.MFATokenLength; n != 0 && n != 6 && n != 8 {
		return fmt.Errorf("MFA_TOKEN_LENGTH must be 6 or 8, got %d", n)
	}
	return nil
}

// PasswordPolicyConfig holds password complexity requirements.
type PasswordPolicyConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// EmailMessageConfig describes one outgoing message.
type EmailMessageConfig struct {
	Subject      string
	HTMLTemplate string
	TextTemplate string
}

// EmailConfig holds outbound email settings.
type EmailConfig struct {
	AppName      string
	Send         bool
	Sender       string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	UseSSL       bool
	ProxyServer  string
	ProxyPort    int
	TemplateDir  string

	RegistrationConfirmPath  string
	PasswordResetConfirmPath string

	Registration      EmailMessageConfig
	AccountActivation EmailMessageConfig
	PasswordReset     EmailMessageConfig
	PasswordChange    EmailMessageConfig
	MFAEnabled        EmailMessageConfig
	MFADisabled       EmailMessageConfig
}

// RateLimitConfig holds per-group request limits.
type RateLimitConfig struct {
	Enabled                bool
	AuthRequestsPerMinute  int
	ResetRequestsPerWindow int
	ResetWindowMinutes     int
	VerifyRequestsPerMin   int
	ProfileRequestsPerMin  int
}

// HTTPConfig holds request limits and response headers.
type HTTPConfig struct {
	MaxRequestBodySize int64
	SecurityHeaders    bool
	HSTSMaxAge         int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		AppBaseURL: strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),

		// Database defaults
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnvInt("DB_PORT", 25432),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "simple_idm"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),

		// JWT defaults
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "simple-idm"),
		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),

		Activation: ActivationConfig{
			RegistrationExpirationDays:  getEnvInt("REGISTRATION_EXPIRATION_DAYS", 1),
			PasswordResetExpirationDays: getEnvInt("PASSWORD_RESET_EXPIRATION_DAYS", 1),
			IgnoreExpired:               getEnvBool("ACTIVATION_ID_IGNORE_EXPIRED", false),
			DoNotDelete:                 getEnvBool("ACTIVATION_ID_DO_NOT_DELETE", false),
		},

		Registration: RegistrationConfig{
			AllowEmailResend:    getEnvBool("REGISTRATION_ALLOW_EMAIL_RESEND", false),
			IgnoreAlreadyActive: getEnvBool("REGISTRATION_IGNORE_ALREADY_ACTIVE", false),
		},

		MFA: MFAConfig{
			IssuerName:          getEnv("MFA_ISSUER_NAME", "simple-idm"),
			SecretKey:           getEnv("MFA_SECRET_KEY", ""),
			AcceptAnyValue:      getEnvBool("MFA_ACCEPT_ANY_VALUE", false),
			EncryptionKey:       getEnv("MFA_ENCRYPTION_KEY", ""),
			DisableConfirmation: getEnv("MFA_DISABLE_CONFIRMATION", "disable"),
			InvalidTokenError:   getEnv("MFA_INVALID_TOKEN_ERROR", ""),
			ReplayedTokenError:  getEnv("MFA_REPLAYED_TOKEN_ERROR", ""),
		},

		Fields: FieldsConfig{
			EmailMaxLength:  getEnvInt("EMAIL_MAX_LENGTH", 50),
			MFATokenLength:  getEnvInt("MFA_TOKEN_LENGTH", 6),
			MFASecretLength: getEnvInt("MFA_SECRET_LENGTH", 32),
		},

		PasswordPolicy: PasswordPolicyConfig{
			MinLength:        getEnvInt("PASSWORD_MIN_LENGTH", 8),
			RequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", false),
			RequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", false),
			RequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", false),
			RequireSpecial:   getEnvBool("PASSWORD_REQUIRE_SPECIAL", false),
		},

		Email: EmailConfig{
			AppName:      getEnv("APP_NAME", "simple-idm"),
			Send:         getEnvBool("EMAIL_SEND", false),
			Sender:       getEnv("EMAIL_SENDER", ""),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvInt("SMTP_PORT", 465),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			UseSSL:       getEnvBool("EMAIL_USE_SSL", true),
			ProxyServer:  getEnv("PROXY_SERVER", ""),
			ProxyPort:    getEnvInt("PROXY_PORT", 1080),
			TemplateDir:  getEnv("EMAIL_TEMPLATE_DIR", ""),

			RegistrationConfirmPath:  getEnv("REGISTRATION_CONFIRM_PATH", "/v1/accounts/register/confirm"),
			PasswordResetConfirmPath: getEnv("PASSWORD_RESET_CONFIRM_PATH", "/password/reset/confirm"),

			Registration:      loadMessage("REGISTRATION_EMAIL", "User Registration", "registration_email"),
			AccountActivation: loadMessage("ACCOUNT_ACTIVATION_EMAIL", "Account Activated", "account_activation"),
			PasswordReset:     loadMessage("PASSWORD_RESET_EMAIL", "Password Reset", "password_reset"),
			PasswordChange:    loadMessage("PASSWORD_CHANGE_EMAIL", "Password Updated", "password_updated"),
			MFAEnabled:        loadMessage("MFA_ENABLED_EMAIL", "Multi-Factor Authentication Enabled", "mfa_enabled"),
			MFADisabled:       loadMessage("MFA_DISABLED_EMAIL", "Multi-Factor Authentication Disabled", "mfa_disabled"),
		},

		RateLimit: RateLimitConfig{
			Enabled:                getEnvBool("RATE_LIMIT_ENABLED", true),
			AuthRequestsPerMinute:  getEnvInt("RATE_LIMIT_AUTH_PER_MINUTE", 10),
			ResetRequestsPerWindow: getEnvInt("RATE_LIMIT_RESET_PER_WINDOW", 3),
			ResetWindowMinutes:     getEnvInt("RATE_LIMIT_RESET_WINDOW_MINUTES", 60),
			VerifyRequestsPerMin:   getEnvInt("RATE_LIMIT_VERIFY_PER_MINUTE", 10),
			ProfileRequestsPerMin:  getEnvInt("RATE_LIMIT_PROFILE_PER_MINUTE", 60),
		},

		HTTP: HTTPConfig{
			MaxRequestBodySize: int64(getEnvInt("HTTP_MAX_BODY_BYTES", 1<<20)),
			SecurityHeaders:    getEnvBool("SECURITY_HEADERS_ENABLED", true),
			HSTSMaxAge:         getEnvInt("HSTS_MAX_AGE", 0),
		},
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Email.Send && !cfg.HasSMTP() {
		return nil, fmt.Errorf("EMAIL_SEND requires SMTP_HOST and EMAIL_SENDER")
	}
	if cfg.MFA.EncryptionKey != "" {
		if _, err := cfg.MFAEncryptionKey(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Fields.ValidateMFA(); err != nil {
		return nil, err
	}
	if cfg.Activation.RegistrationExpirationDays < 0 || cfg.Activation.PasswordResetExpirationDays < 0 {
		return nil, fmt.Errorf("activation expiration days must not be negative")
	}

	return cfg, nil
}

// HasSMTP returns true if an SMTP server and sender are configured.
func (c *Config) HasSMTP() bool {
	return c.Email.SMTPHost != "" && c.Email.Sender != ""
}

// CookieSecure reports whether cookies should carry the Secure flag.
func (c *Config) CookieSecure() bool {
	return strings.HasPrefix(c.AppBaseURL, "https://")
}

// HasProxy returns true if outbound mail goes through a SOCKS5 proxy.
func (c *Config) HasProxy() bool {
	return c.Email.ProxyServer != ""
}

// HasMFAEncryption returns true if MFA secrets are encrypted at rest.
func (c *Config) HasMFAEncryption() bool {
	return c.MFA.EncryptionKey != ""
}

// MFAEncryptionKey decodes the configured AES-256 key.
func (c *Config) MFAEncryptionKey() ([]byte, error) {
	if c.MFA.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.MFA.EncryptionKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be 64-char hex (32 bytes)")
	}
	return key, nil
}

func loadMessage(prefix, subject, template string) EmailMessageConfig {
	return EmailMessageConfig{
		Subject:      getEnv(prefix+"_SUBJECT", subject),
		HTMLTemplate: getEnv(prefix+"_HTML", template+".html"),
		TextTemplate: getEnv(prefix+"_TEXT", template+".txt"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
