package domain

import "errors"

// Error taxonomy. Handlers map these to HTTP codes; everything else is
// treated as an internal error.
var (
	// ErrValidation marks malformed input (bad email, invalid merge target).
	// Never retried automatically.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing contact or session.
	ErrNotFound = errors.New("not found")

	// ErrInvariant marks a mutation that would corrupt the store (negative
	// counts, identity change). The mutation is rejected, never persisted.
	ErrInvariant = errors.New("store invariant violation")
)
