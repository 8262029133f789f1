package services

import "errors"

// Business-rule failures surfaced directly to the caller. None of these are
// retried; each handler maps them to a status code and a stable reason.
var (
	// ErrInvalidModel means the requested model is absent or inactive.
	ErrInvalidModel = errors.New("unknown or inactive model")

	// ErrNotFound covers missing requests and requests owned by another
	// user; the two are indistinguishable to the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the request is in a terminal state and the
	// requested transition is not permitted.
	ErrInvalidState = errors.New("request is in a terminal state")

	// ErrValidation marks malformed or out-of-range input. Use with
	// fmt.Errorf("%w: ...") so the detail travels with it.
	ErrValidation = errors.New("validation failed")

	// ErrStoreConflict is returned after retries of a transaction that
	// kept failing on serialization contention. Safe to retry whole.
	ErrStoreConflict = errors.New("store conflict, retry the operation")
)
