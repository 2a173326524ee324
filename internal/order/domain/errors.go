package domain

import "errors"

// Error taxonomy shared by the service and storage layers. Callers wrap
// these with context and branch on errors.Is.
var (
	// ErrValidation covers bad input and business-rule violations,
	// insufficient stock included.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidStateTransition means a status guard rejected the move.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrForbidden means the caller does not own the order.
	ErrForbidden = errors.New("forbidden")

	ErrNotFound = errors.New("order not found")

	// ErrExternalService means a downstream dependency was unreachable
	// or returned an error.
	ErrExternalService = errors.New("external service error")

	// ErrConflict means a concurrent writer won the version race; the
	// caller may re-read and retry or reject.
	ErrConflict = errors.New("concurrent modification")
)
