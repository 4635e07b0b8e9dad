package repository

import "errors"

var (
	// ErrNotFound indicates no row matched a lookup by identifier.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTransaction indicates a transaction with the same external id already exists.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
)
