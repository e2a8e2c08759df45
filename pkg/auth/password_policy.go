package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tendant/simple-idm-accounts/internal/config"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// NewPasswordPolicy creates a PasswordPolicy from config.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        cfg.MinLength,
		RequireUppercase: cfg.RequireUppercase,
		RequireLowercase: cfg.RequireLowercase,
		RequireNumber:    cfg.RequireNumber,
		RequireSpecial:   cfg.RequireSpecial,
	}
}

// ValidatePassword checks if a password meets the policy requirements.
// Violations are reported as domain.ErrWeakPassword against field.
func (p *PasswordPolicy) ValidatePassword(field, password string) error {
	weak := func(format string, args ...any) error {
		return domain.WrapError(domain.KindWeakPassword, field, fmt.Errorf(format, args...))
	}

	if p.MinLength > 0 && len(password) < p.MinLength {
		return weak("password must be at least %d characters long", p.MinLength)
	}
	if p.RequireUppercase && !containsUppercase(password) {
		return weak("password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !containsLowercase(password) {
		return weak("password must contain at least one lowercase letter")
	}
	if p.RequireNumber && !containsNumber(password) {
		return weak("password must contain at least one number")
	}
	if p.RequireSpecial && !containsSpecial(password) {
		return weak("password must contain at least one special character")
	}

	return nil
}

// CheckPair validates a new password typed twice. The confirmation must match
// before the policy is applied.
func (p *PasswordPolicy) CheckPair(field1, password1, field2, password2 string) error {
	if password1 != password2 {
		return domain.NewError(domain.KindPasswordMismatch, field2)
	}
	if p == nil {
		return nil
	}
	return p.ValidatePassword(field1, password1)
}

// GetRequirements returns a human-readable description of the policy.
func (p *PasswordPolicy) GetRequirements() string {
	if !p.HasRequirements() {
		return "No password requirements"
	}

	var requirements []string

	if p.MinLength > 0 {
		requirements = append(requirements, fmt.Sprintf("at least %d characters", p.MinLength))
	}
	if p.RequireUppercase {
		requirements = append(requirements, "one uppercase letter")
	}
	if p.RequireLowercase {
		requirements = append(requirements, "one lowercase letter")
	}
	if p.RequireNumber {
		requirements = append(requirements, "one number")
	}
	if p.RequireSpecial {
		requirements = append(requirements, "one special character")
	}

	return "Password must contain " + strings.Join(requirements, ", ")
}

// HasRequirements returns true if the policy has any requirements.
func (p *PasswordPolicy) HasRequirements() bool {
	return p.MinLength > 0 || p.RequireUppercase || p.RequireLowercase || p.RequireNumber || p.RequireSpecial
}

// containsUppercase checks if string contains at least one uppercase letter.
func containsUppercase(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// containsLowercase checks if string contains at least one lowercase letter.
func containsLowercase(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

// containsNumber checks if string contains at least one digit.
func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// containsSpecial checks if string contains at least one special character.
func containsSpecial(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
