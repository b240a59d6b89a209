package contracts

import "errors"

var (
	// ErrInsufficientData means a window had fewer observations than the
	// metric's minimum and no forecast was attempted.
	ErrInsufficientData = errors.New("insufficient historical data")

	// ErrActualUnavailable means the realized value for a target period has
	// not been reported yet.
	ErrActualUnavailable = errors.New("actual value unavailable")

	// ErrModelUnavailable means no trained adjustment model artifact exists.
	ErrModelUnavailable = errors.New("adjustment model unavailable")

	// ErrInvalidConfig means a configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound means the requested record does not exist in storage.
	ErrNotFound = errors.New("record not found")
)
