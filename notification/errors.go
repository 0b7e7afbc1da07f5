package notification

import "errors"

var (
	// ErrMissingContent is returned when a notification has no title or body.
	ErrMissingContent = errors.New("notification title and body are required")

	// ErrMissingEventKey is returned when a notification has no event key.
	ErrMissingEventKey = errors.New("notification event key is required")

	// ErrMissingRecipient is returned when a user-audience notification has no recipient.
	ErrMissingRecipient = errors.New("recipient user id is required for user audience")

	// ErrChannelMismatch is returned when the delivery set does not match the channel set.
	ErrChannelMismatch = errors.New("deliveries do not match requested channels")
)
