package service

import (
	"fmt"

	"github.com/vanshika/mint/internal/repository"
)

var (
	// ErrNotFound is returned when a transaction lookup matches nothing.
	ErrNotFound = repository.ErrNotFound
	// ErrDuplicateTransaction is returned when an external id is already taken.
	ErrDuplicateTransaction = repository.ErrDuplicateTransaction
)

// ValidationError reports caller input that was rejected before touching storage.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
