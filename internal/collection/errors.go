package collection

import "errors"

var (
	// ErrNotFound is returned when a point lookup matches no record.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when an insert collides with an existing
	// local key.
	ErrDuplicateKey = errors.New("duplicate local key")

	// ErrInvalidDocument is returned when a stored document cannot be
	// decoded back into a record.
	ErrInvalidDocument = errors.New("invalid stored document")
)
