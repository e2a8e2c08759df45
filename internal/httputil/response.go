// Package httputil holds the JSON request and response helpers shared by the
// HTTP feature handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tendant/simple-idm-accounts/pkg/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes a plain error message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// Decode reads a JSON body into dst and validates it. Failures are written to
// w and reported as false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			JSON(w, http.StatusBadRequest, ErrorResponse{
				Error: verrs[0].Field() + " is " + describeTag(verrs[0].Tag()),
				Code:  "invalid_request",
				Field: verrs[0].Field(),
			})
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "email":
		return "not a valid email address"
	case "uuid", "uuid4":
		return "not a valid id"
	default:
		return "invalid"
	}
}

// StatusFor maps a business error kind to an HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidCredentials, domain.KindPasswordInvalid,
		domain.KindTokenInvalid, domain.KindTokenReplayed:
		return http.StatusUnauthorized
	case domain.KindResendNotAllowed:
		return http.StatusForbidden
	case domain.KindUserNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyActive, domain.KindAlreadyExists,
		domain.KindMFAAlreadyEnabled, domain.KindMFANotEnabled:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// DomainError writes err if it is a business error, using msgs for the text.
// It reports false for infrastructure errors, which the caller must handle.
func DomainError(w http.ResponseWriter, msgs domain.Messages, err error) bool {
	kind, ok := domain.KindOf(err)
	if !ok {
		return false
	}
	JSON(w, StatusFor(kind), ErrorResponse{
		Error: msgs.Lookup(kind),
		Code:  kind.Code(),
		Field: domain.FieldOf(err),
	})
	return true
}

// Fail writes err. Business errors get their mapped status; anything else is
// logged and reported as a 500 with the generic message.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msgs domain.Messages, err error, message string) {
	if DomainError(w, msgs, err) {
		return
	}
	logger.ErrorContext(r.Context(), message, "error", err)
	Error(w, http.StatusInternalServerError, message)
}
