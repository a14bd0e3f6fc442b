package models

import "errors"

// Domain error taxonomy. Validation and authorization failures surface
// synchronously to the caller; stale fixes are flagged on events rather
// than treated as errors.
var (
	// ErrInvalidFix marks a fix with out-of-range coordinates or a
	// timestamp too far in the future. Hard reject: it signals a corrupt
	// client clock or spoofed input.
	ErrInvalidFix = errors.New("invalid fix")

	// ErrUnauthorized marks a session attempting to ingest for a bus it
	// does not own. Rejected before any store mutation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound marks a lookup for a bus with no location record.
	ErrNotFound = errors.New("not found")
)
