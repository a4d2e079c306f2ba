package alerting

import "errors"

var (
	ErrAlertNotFound   = errors.New("alert not found")
	ErrInvalidAlertID  = errors.New("invalid alert id")
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrNotOpen is returned when acknowledging an alert that is not open.
	ErrNotOpen = errors.New("alert is not open")
	// ErrAlreadyResolved is returned when resolving an already resolved alert.
	ErrAlreadyResolved = errors.New("alert is already resolved")
)
