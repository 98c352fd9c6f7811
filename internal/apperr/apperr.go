// Package apperr holds the error kinds shared by the storage, repository and
// service layers. Callers wrap a kind with context and classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks bad input: wrong MIME type, oversized file, missing field.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced category, variant, document or blob that is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a uniqueness or version-invariant violation.
	ErrConflict = errors.New("conflict")
	// ErrStorage marks a storage backend I/O, auth or timeout failure.
	ErrStorage = errors.New("storage error")
	// ErrUnauthorized marks missing or invalid admin credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// Validation returns an ErrValidation with a formatted, caller-safe message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

// Conflict returns an ErrConflict with a formatted message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Storage wraps cause as an ErrStorage for the given operation.
func Storage(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrStorage, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, cause)
}

// Message strips the kind prefix and returns the caller-safe part of err.
// For errors without a known kind it returns the empty string.
func Message(err error) string {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrUnauthorized} {
		if errors.Is(err, kind) {
			msg := err.Error()
			prefix := kind.Error() + ": "
			if i := strings.Index(msg, prefix); i >= 0 {
				return msg[i+len(prefix):]
			}
			return kind.Error()
		}
	}
	return ""
}
