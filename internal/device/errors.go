package device

import "errors"

var (
	// ErrAccessoryNotFound is returned when no accessory has the given ID.
	ErrAccessoryNotFound = errors.New("device: accessory not found")

	// ErrInvalidID is returned when an accessory ID is not a positive integer.
	ErrInvalidID = errors.New("device: invalid accessory id")
)
