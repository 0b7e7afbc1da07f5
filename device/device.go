package device

import (
	"context"
	"errors"
	"time"
)

// Provider identifies a push gateway a token belongs to.
type Provider string

// ProviderExpo is the Expo push gateway.
const ProviderExpo Provider = "expo"

// Device is a single push registration. The push token is unique across
// users: re-registering a token moves it to the new user.
type Device struct {
	UserID           string     `json:"user_id" bson:"user_id"`
	PushToken        string     `json:"push_token" bson:"_id"`
	Provider         Provider   `json:"provider" bson:"provider"`
	Platform         string     `json:"platform" bson:"platform"`
	IsActive         bool       `json:"is_active" bson:"is_active"`
	LastSeenAt       time.Time  `json:"last_seen_at" bson:"last_seen_at"`
	LastErrorAt      *time.Time `json:"last_error_at,omitempty" bson:"last_error_at,omitempty"`
	LastErrorMessage string     `json:"last_error_message,omitempty" bson:"last_error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" bson:"updated_at"`
}

// Registry persists device registrations.
type Registry interface {
	// Register stores or refreshes a device registration, reactivating it
	// and stamping last-seen.
	Register(ctx context.Context, userID, token string, provider Provider, platform string) (*Device, error)

	// Unregister removes the registration for the user's token.
	Unregister(ctx context.Context, userID, token string) error

	// ActiveTokens returns the user's active push tokens for the provider.
	ActiveTokens(ctx context.Context, userID string, provider Provider) ([]string, error)

	// Deactivate marks a token inactive with the provider-reported reason.
	// Idempotent: repeating the call is a no-op.
	Deactivate(ctx context.Context, token, reason string) error
}

// ErrNotFound is returned when no registration matches the token.
var ErrNotFound = errors.New("device not found")
