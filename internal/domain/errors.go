package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidState   = errors.New("invalid state")
	ErrPolicyMismatch = errors.New("policy mismatch")
	ErrUnavailable    = errors.New("storage unavailable")
	// ErrAlreadyRecorded is returned by an audit append whose IdempotencyKey
	// is already present on the document's chain.
	ErrAlreadyRecorded = errors.New("audit event already recorded")

	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Retryable reports whether a caller may reasonably retry the operation that
// produced err. Only storage unavailability is transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
