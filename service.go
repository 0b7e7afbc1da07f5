package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifier/device"
	"github.com/dmitrymomot/notifier/dispatch"
	"github.com/dmitrymomot/notifier/logger"
	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/policy"
	"github.com/dmitrymomot/notifier/store"
)

// Service is the application-facing facade. It owns notification intake and
// the user-facing feed operations; background delivery runs in the attached
// dispatch scheduler.
type Service struct {
	storage   store.Storage
	prefs     store.PreferencesStorage
	devices   device.Registry
	scheduler *dispatch.Scheduler
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the Service.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithDeviceRegistry attaches the push device registry. Without it the
// device operations return an error.
func WithDeviceRegistry(devices device.Registry) ServiceOption {
	return func(s *Service) {
		s.devices = devices
	}
}

// WithScheduler attaches the dispatch scheduler so synchronous channels are
// delivered at intake time. Without it every channel waits for whatever
// drains the storage.
func WithScheduler(scheduler *dispatch.Scheduler) ServiceOption {
	return func(s *Service) {
		s.scheduler = scheduler
	}
}

// NewService creates the notification service facade.
func NewService(storage store.Storage, prefs store.PreferencesStorage, opts ...ServiceOption) (*Service, error) {
	if storage == nil {
		return nil, dispatch.ErrStorageNil
	}

	s := &Service{
		storage: storage,
		prefs:   prefs,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dispatch creates a notification and queues its deliveries. Returns
// store.ErrDuplicate when the deduplication key was already used for the
// recipient. When the notification is due immediately, synchronous channels
// are delivered before Dispatch returns; provider-backed channels wait for
// the next scheduler cycle.
func (s *Service) Dispatch(ctx context.Context, params notification.CreateParams) (*notification.Notification, error) {
	n, err := notification.New(params)
	if err != nil {
		return nil, err
	}

	if err := s.storage.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	s.logger.InfoContext(ctx, "notification dispatched",
		logger.NotificationID(n.ID),
		logger.UserID(n.RecipientUserID),
		logger.EventKey(n.EventKey),
	)

	return s.deliverSynchronous(ctx, n), nil
}

// DispatchToUsers fans one notification template out to multiple
// recipients, each getting their own aggregate with its own delivery
// lineage. Recipients failing dedup are skipped, any other storage failure
// aborts the fan-out.
func (s *Service) DispatchToUsers(ctx context.Context, userIDs []string, params notification.CreateParams) ([]*notification.Notification, error) {
	dispatched := make([]*notification.Notification, 0, len(userIDs))

	for _, userID := range userIDs {
		p := params
		p.Audience = notification.AudienceUser
		p.RecipientUserID = userID

		n, err := s.Dispatch(ctx, p)
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				s.logger.DebugContext(ctx, "skipping duplicate notification",
					logger.UserID(userID),
					logger.EventKey(params.EventKey),
				)
				continue
			}
			return dispatched, fmt.Errorf("failed to dispatch to user %s: %w", userID, err)
		}
		dispatched = append(dispatched, n)
	}

	return dispatched, nil
}

// deliverSynchronous runs due synchronous channels through the claim path
// right away so in-app notifications land without a tick of latency.
// Failures are logged; the scheduler picks the delivery up later.
func (s *Service) deliverSynchronous(ctx context.Context, n *notification.Notification) *notification.Notification {
	if s.scheduler == nil || !n.IsDue(time.Now().UTC()) {
		return n
	}

	ran := false
	for _, ch := range n.Channels {
		if !ch.Synchronous() {
			continue
		}
		ran = true
		if err := s.scheduler.Deliver(ctx, n.ID, ch); err != nil {
			s.logger.WarnContext(ctx, "synchronous delivery failed, deferring to scheduler",
				logger.NotificationID(n.ID),
				logger.Channel(ch),
				logger.Error(err),
			)
		}
	}
	if !ran {
		return n
	}

	fresh, err := s.storage.Get(ctx, n.ID)
	if err != nil {
		return n
	}
	return fresh
}

// Get retrieves a notification by id.
func (s *Service) Get(ctx context.Context, id string) (*notification.Notification, error) {
	return s.storage.Get(ctx, id)
}

// ListForUser returns a page of the user's notifications, newest first, and
// the total count matching the filter.
func (s *Service) ListForUser(ctx context.Context, userID string, opts store.ListOptions) ([]notification.Notification, int, error) {
	return s.storage.ListForUser(ctx, userID, opts)
}

// CountUnread returns the user's unread, unarchived notification count.
func (s *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.storage.CountUnread(ctx, userID)
}

// MarkRead stamps a notification read. Idempotent.
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	return s.storage.MarkRead(ctx, id, userID)
}

// MarkAllRead stamps every unread notification for the user.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.storage.MarkAllRead(ctx, userID)
}

// Archive hides a notification from the feed and from dispatch.
func (s *Service) Archive(ctx context.Context, id, userID string) error {
	return s.storage.Archive(ctx, id, userID)
}

// Unarchive restores an archived notification to the feed.
func (s *Service) Unarchive(ctx context.Context, id, userID string) error {
	return s.storage.Unarchive(ctx, id, userID)
}

// RegisterDevice stores or refreshes a push device registration.
func (s *Service) RegisterDevice(ctx context.Context, userID, token string, provider device.Provider, platform string) (*device.Device, error) {
	if s.devices == nil {
		return nil, ErrDeviceRegistryNotConfigured
	}
	return s.devices.Register(ctx, userID, token, provider, platform)
}

// UnregisterDevice removes the user's push device registration.
func (s *Service) UnregisterDevice(ctx context.Context, userID, token string) error {
	if s.devices == nil {
		return ErrDeviceRegistryNotConfigured
	}
	return s.devices.Unregister(ctx, userID, token)
}

// GetPreferences returns the user's delivery preferences, falling back to
// the defaults when the user never configured anything.
func (s *Service) GetPreferences(ctx context.Context, userID string) (policy.Preferences, error) {
	if s.prefs == nil {
		return policy.DefaultPreferences(), nil
	}
	return s.prefs.GetPreferences(ctx, userID)
}

// UpdatePreferences merges the patch into the user's stored preferences.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, patch policy.PreferencesPatch) (policy.Preferences, error) {
	if s.prefs == nil {
		return policy.Preferences{}, ErrPreferencesNotConfigured
	}
	return s.prefs.UpdatePreferences(ctx, userID, patch)
}

// Storage returns the underlying notification storage.
func (s *Service) Storage() store.Storage {
	return s.storage
}
