package joint

import "errors"

var (
	// ErrInvalidConfig is returned when a joint is constructed from an
	// invalid or incomplete configuration.
	ErrInvalidConfig = errors.New("invalid joint configuration")

	// ErrParentNotFound is returned by the prepare path when a child's
	// embedded parent reference resolves to no parent record.
	ErrParentNotFound = errors.New("parent record not found")

	// ErrParentMissingExternalKey is returned by the prepare path when the
	// parent exists but has not been assigned an external key yet, so the
	// child's foreign key cannot be resolved.
	ErrParentMissingExternalKey = errors.New("parent record has no external key")
)
