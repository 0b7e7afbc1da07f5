package store

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/policy"
)

// Storage handles notification persistence and the claim protocol.
type Storage interface {
	// Create stores a new notification with its delivery set in one
	// operation. Returns ErrDuplicate when the notification carries a
	// deduplication key already present for the same recipient.
	Create(ctx context.Context, n *notification.Notification) error

	// Get retrieves a notification by id.
	Get(ctx context.Context, id string) (*notification.Notification, error)

	// ListForUser returns a page of the user's notifications, newest first,
	// along with the total count matching the filter.
	ListForUser(ctx context.Context, userID string, opts ListOptions) ([]notification.Notification, int, error)

	// CountUnread returns the number of unread, unarchived notifications.
	CountUnread(ctx context.Context, userID string) (int, error)

	// MarkRead stamps the read timestamp. Read state is user-facing and
	// independent of the delivery lifecycle.
	MarkRead(ctx context.Context, id string, userID string) error

	// MarkAllRead stamps every unread notification for the user.
	MarkAllRead(ctx context.Context, userID string) error

	// Archive hides the notification from dispatch and listing.
	Archive(ctx context.Context, id string, userID string) error

	// Unarchive restores an archived notification.
	Unarchive(ctx context.Context, id string, userID string) error

	// FindDue returns up to limit notifications eligible for dispatch on
	// the channel at the given instant, oldest first: lifecycle still
	// active, not archived, past any scheduled-at, holding a claimable
	// delivery for the channel.
	FindDue(ctx context.Context, ch notification.Channel, now time.Time, limit int) ([]notification.Notification, error)

	// Claim atomically re-checks the eligibility predicate, flips the
	// channel's delivery to sending, stamps its sent-at, increments its
	// attempt count and moves the aggregate to dispatching. Returns
	// ErrClaimConflict when the delivery is no longer claimable, which is
	// a normal lost race rather than an error condition.
	Claim(ctx context.Context, id string, ch notification.Channel, now time.Time) (*notification.Notification, error)

	// UpdateDelivery persists a processed delivery outcome and re-derives
	// the aggregate status from the full delivery set. Callers must own
	// the delivery through a prior successful Claim.
	UpdateDelivery(ctx context.Context, id string, d notification.Delivery) (*notification.Notification, error)

	// DeleteExpired purges notifications whose TTL has passed and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// ReadFilter selects notifications by read state.
type ReadFilter string

const (
	ReadFilterAll    ReadFilter = ""
	ReadFilterUnread ReadFilter = "unread"
	ReadFilterRead   ReadFilter = "read"
)

// ListOptions provides filtering and pagination for ListForUser.
type ListOptions struct {
	Status ReadFilter // Unread/read filter; empty returns both.
	Limit  int        // Page size; 0 means no limit.
	Offset int        // Rows to skip.
}

// PreferencesStorage persists per-user delivery preferences.
type PreferencesStorage interface {
	// GetPreferences returns the user's stored preferences, or the
	// defaults when the user never configured anything.
	GetPreferences(ctx context.Context, userID string) (policy.Preferences, error)

	// UpdatePreferences shallow-merges the patch into the stored
	// preferences and returns the result.
	UpdatePreferences(ctx context.Context, userID string, patch policy.PreferencesPatch) (policy.Preferences, error)
}
