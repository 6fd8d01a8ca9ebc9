package shared

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced to callers. Every recoverable error produced by the
// domain services wraps exactly one of these sentinels so the HTTP layer can
// map it to a status code with errors.Is.
var (
	// ErrNotFound indicates a role, permission, user, field or value record is absent.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor lacks authorization for the attempted operation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a duplicate unique key or a race-lost first fill.
	ErrConflict = errors.New("conflict")
	// ErrInvalidValue indicates a field value failed type, range, format or choice validation.
	ErrInvalidValue = errors.New("invalid value")
	// ErrInvalidInput indicates a malformed request-level argument.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Fail attaches a human-readable reason to one of the sentinel kinds.
func Fail(kind error, reason string) error {
	return fmt.Errorf("%s: %w", reason, kind)
}

// Failf is Fail with formatting.
func Failf(kind error, format string, args ...any) error {
	return Fail(kind, fmt.Sprintf(format, args...))
}

// UserSafeMessage returns the error text for recoverable failures and a
// generic message for anything else, so storage internals never leak.
func UserSafeMessage(err error) string {
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrConflict, ErrInvalidValue, ErrInvalidInput, ErrInvalidCredentials} {
		if errors.Is(err, kind) {
			return err.Error()
		}
	}
	return "an unexpected error occurred"
}
