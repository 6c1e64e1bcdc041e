// errors/auth_errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes for the authentication chain. Backends wrap these so the
// registry can tell a "this backend does not apply" failure from a fatal one.
var (
	ErrAuth         = errors.New("authentication failure")
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidAuth  = errors.New("invalid or malformed credentials")
	ErrFailedAuth   = errors.New("failed authentication")
	ErrAuthExpired  = errors.New("credentials expired")
	ErrForbidden    = errors.New("forbidden")
	ErrConfig       = errors.New("auth configuration error")
)

// Policy administration errors.
var (
	ErrPolicyNotFound    = errors.New("policy not found")
	ErrPolicyConflict    = errors.New("policy conflict")
	ErrInvalidPolicyData = errors.New("invalid policy data")
)

// Soft reports whether err is a backend-local verification failure that
// permits trying the next backend. Anything else aborts the chain.
func Soft(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInvalidAuth) ||
		errors.Is(err, ErrFailedAuth) ||
		errors.Is(err, ErrAuth)
}

// StatusOf maps a failure class to the HTTP status surfaced to the caller.
func StatusOf(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Status != 0 {
		return authErr.Status
	}
	switch {
	case errors.Is(err, ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrFailedAuth):
		return http.StatusForbidden
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAuth):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AuthError carries a failure class together with the HTTP status and the
// human-readable reason surfaced in the error body.
type AuthError struct {
	Status int
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Wrap builds an AuthError on top of a failure class.
func Wrap(class error, reason string) *AuthError {
	return &AuthError{Reason: reason, Err: class}
}

// Wrapf is Wrap with a formatted reason.
func Wrapf(class error, format string, args ...any) *AuthError {
	return &AuthError{Reason: fmt.Sprintf(format, args...), Err: class}
}

// WithStatus pins an explicit HTTP status on the error.
func WithStatus(class error, status int, reason string) *AuthError {
	return &AuthError{Status: status, Reason: reason, Err: class}
}

// ReasonOf extracts the reason string of an AuthError, falling back to the
// plain error text.
func ReasonOf(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return err.Error()
}
