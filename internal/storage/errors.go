package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a list file changed between load and save.
	ErrConflict = errors.New("conflict: file changed since it was loaded")
)
