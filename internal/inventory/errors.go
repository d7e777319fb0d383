package inventory

import "errors"

// Domain-specific errors for inventory persistence.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSpoolNotFound is returned when a spool lookup matches nothing.
	ErrSpoolNotFound = errors.New("inventory: spool not found")

	// ErrSpoolExists is returned when creating a spool whose id or tag is
	// already registered.
	ErrSpoolExists = errors.New("inventory: spool already exists")

	// ErrPrinterNotFound is returned when a printer lookup matches nothing.
	ErrPrinterNotFound = errors.New("inventory: printer not found")

	// ErrPrinterExists is returned when registering an already-known serial.
	ErrPrinterExists = errors.New("inventory: printer already exists")
)
