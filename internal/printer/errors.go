package printer

import "errors"

// Domain-specific errors for printer sessions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectFailed is returned when the transport or authentication
	// step of Connect fails. The connection is not created.
	ErrConnectFailed = errors.New("printer: connection failed")

	// ErrNotConnected is returned for queries against a serial the fleet
	// does not manage.
	ErrNotConnected = errors.New("printer: not connected")
)
