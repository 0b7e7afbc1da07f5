package store

import "errors"

var (
	// ErrNotFound is returned when no notification matches the query.
	ErrNotFound = errors.New("notification not found")

	// ErrDuplicate is returned when a deduplication key already exists for
	// the same recipient.
	ErrDuplicate = errors.New("duplicate notification for deduplication key")

	// ErrClaimConflict is returned when an atomic claim loses the race:
	// the delivery was already claimed, settled, or is not yet due. Not an
	// error condition; callers skip and move on.
	ErrClaimConflict = errors.New("delivery claim conflict")

	// ErrDeliveryNotFound is returned when the notification exists but has
	// no delivery for the requested channel.
	ErrDeliveryNotFound = errors.New("no delivery for channel")

	// ErrFailedToConnect is returned when a storage backend cannot be
	// reached after all connect retries.
	ErrFailedToConnect = errors.New("failed to connect to storage backend")

	// ErrFailedToApplyMigrations is returned when schema migrations fail.
	ErrFailedToApplyMigrations = errors.New("failed to apply migrations")
)
