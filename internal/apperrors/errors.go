package apperrors

import "errors"

// Shared error taxonomy. Callers wrap with fmt.Errorf("%w: ...") and the
// HTTP edge maps each sentinel to a status code.
var (
	// ErrValidation: malformed input, caller's fault, never retried.
	ErrValidation = errors.New("validation")
	// ErrNotFound: the referenced entity does not exist (or is trashed).
	ErrNotFound = errors.New("not found")
	// ErrConflict: state raced away from the caller (insufficient stock,
	// token already rotated or redeemed); re-request with fresh state.
	ErrConflict = errors.New("conflict")
	// ErrTransient: infrastructure hiccup eligible for bounded retry.
	ErrTransient = errors.New("transient infrastructure failure")
	// ErrDeliveryDegraded: publish retries exhausted after a commit. The
	// committed state stands; this is surfaced to operators, not callers.
	ErrDeliveryDegraded = errors.New("event delivery degraded")
)
