package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPreference marks malformed or ambiguous preference input.
	// Callers must correct the request; it is never retried as-is.
	ErrInvalidPreference = errors.New("invalid preference")
	// ErrRetrievalUnavailable means every retrieval branch failed or timed
	// out. Callers retry with backoff.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrInsufficientCredits is the business-rule failure on a reveal
	// attempt with a zero balance. Surfaced verbatim, never retried.
	ErrInsufficientCredits = errors.New("insufficient credits")
)
