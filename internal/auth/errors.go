package auth

import "errors"

// Domain-specific errors for API key management.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrKeyNotFound is returned when a key lookup matches nothing.
	ErrKeyNotFound = errors.New("auth: api key not found")

	// ErrInvalidKey is returned when a presented key fails verification.
	ErrInvalidKey = errors.New("auth: invalid api key")
)
