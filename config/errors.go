package config

import "errors"

var (
	// ErrNilPointer is returned when Load receives a nil destination.
	ErrNilPointer = errors.New("config: nil pointer provided")

	// ErrParsingConfig wraps environment parsing failures.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrConfigNotLoaded indicates the cached value disappeared between
	// parsing and readback, which should never happen in practice.
	ErrConfigNotLoaded = errors.New("config: configuration not loaded")
)
