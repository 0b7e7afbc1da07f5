package dispatch

import "errors"

var (
	// ErrStorageNil is returned when a scheduler is created without storage.
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrNoProcessors is returned when a scheduler is started without any
	// registered channel processors.
	ErrNoProcessors = errors.New("no channel processors registered")

	// ErrAlreadyStarted is returned when Start is called on a running scheduler.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrProcessorNotFound is returned when a delivery targets a channel with
	// no registered processor.
	ErrProcessorNotFound = errors.New("no processor for channel")
)
