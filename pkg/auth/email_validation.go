package auth

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

const maxEmailLength = 254 // RFC 5321

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEmail validates an email address for format and length. A maxLength
// of zero or less falls back to the RFC 5321 limit.
func ValidateEmail(email string, maxLength int) error {
	if maxLength <= 0 || maxLength > maxEmailLength {
		maxLength = maxEmailLength
	}

	if email == "" {
		return domain.WrapError(domain.KindInvalidEmail, "email", fmt.Errorf("email address is required"))
	}
	if len(email) > maxLength {
		return domain.WrapError(domain.KindInvalidEmail, "email",
			fmt.Errorf("email address is too long (max %d characters)", maxLength))
	}
	if err := validate.Var(email, "email"); err != nil {
		return domain.WrapError(domain.KindInvalidEmail, "email", fmt.Errorf("invalid email address format"))
	}
	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
