package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NewError(KindTokenReplayed, "mfa_token")

	if !errors.Is(err, ErrTokenReplayed) {
		t.Error("errors.Is should match the sentinel of the same kind")
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Error("errors.Is should not match a different kind")
	}

	wrapped := fmt.Errorf("login: %w", err)
	if !errors.Is(wrapped, ErrTokenReplayed) {
		t.Error("errors.Is should see through fmt.Errorf wrapping")
	}
	if FieldOf(wrapped) != "mfa_token" {
		t.Errorf("FieldOf() = %q, want %q", FieldOf(wrapped), "mfa_token")
	}
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(fmt.Errorf("wrap: %w", ErrActivationExpired))
	if !ok || kind != KindActivationExpired {
		t.Errorf("KindOf() = %v, %v; want %v, true", kind, ok, KindActivationExpired)
	}

	if _, ok := KindOf(errors.New("connection refused")); ok {
		t.Error("KindOf() should report false for infrastructure errors")
	}
}

func TestErrorKind_Code(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindActivationInvalid, "activation_id_invalid"},
		{KindActivationExpired, "activation_id_expired"},
		{KindTokenInvalid, "invalid_mfa_token"},
		{KindTokenReplayed, "replayed_mfa_token"},
		{KindConfirmationInvalid, "confirmation_invalid"},
		{KindResendNotAllowed, "resend_not_allowed"},
		{ErrorKind(0), "unknown"},
		{ErrorKind(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.Code(); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessages_Overrides(t *testing.T) {
	m := NewMessages(map[ErrorKind]string{
		KindTokenInvalid:  "Wrong code.",
		KindTokenReplayed: "",
	})

	if got := m.Lookup(KindTokenInvalid); got != "Wrong code." {
		t.Errorf("Lookup(TokenInvalid) = %q, want override", got)
	}
	if got := m.Lookup(KindTokenReplayed); got != DefaultMessages.Lookup(KindTokenReplayed) {
		t.Errorf("empty override should keep the default, got %q", got)
	}
	if got := DefaultMessages.Lookup(KindTokenInvalid); got == "Wrong code." {
		t.Error("overrides must not leak into the default table")
	}
}
