package model

import (
	"errors"
)

// Errors surfaced by the lifecycle and query paths. Store CRUD methods
// report the same conditions as HTTP status codes instead.
var (
	// ErrNotFound - unknown handoff token or missing row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyTerminal - completion or abandonment attempted on a
	// handoff already in a terminal status. Reported as a conflict so
	// the caller can decide between idempotent success and failure.
	ErrAlreadyTerminal = errors.New("handoff already terminal")
)
