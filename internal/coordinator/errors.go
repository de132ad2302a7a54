package coordinator

import "errors"

var (
	// ErrStopped is returned when the coordinator is no longer running.
	ErrStopped = errors.New("coordinator: stopped")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("coordinator: already started")
)
