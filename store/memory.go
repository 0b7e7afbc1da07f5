package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/policy"
)

// MemoryStorage implements Storage with mutex-guarded maps. Intended for
// tests and local development; the claim operation is made atomic by the
// storage-wide lock.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[string]*notification.Notification
	dedup         map[string]string // "recipient:key" -> notification id
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string]*notification.Notification),
		dedup:         make(map[string]string),
	}
}

func dedupKey(n *notification.Notification) string {
	return n.RecipientUserID + ":" + n.DeduplicationKey
}

func (ms *MemoryStorage) Create(ctx context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if n.DeduplicationKey != "" {
		if _, exists := ms.dedup[dedupKey(n)]; exists {
			return ErrDuplicate
		}
	}

	ms.notifications[n.ID] = cloneNotification(n)
	if n.DeduplicationKey != "" {
		ms.dedup[dedupKey(n)] = n.ID
	}
	return nil
}

func (ms *MemoryStorage) Get(ctx context.Context, id string) (*notification.Notification, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	n, exists := ms.notifications[id]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

func (ms *MemoryStorage) ListForUser(ctx context.Context, userID string, opts ListOptions) ([]notification.Notification, int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	matched := make([]*notification.Notification, 0)
	for _, n := range ms.notifications {
		if n.RecipientUserID != userID || n.ArchivedAt != nil {
			continue
		}
		switch opts.Status {
		case ReadFilterUnread:
			if n.ReadAt != nil {
				continue
			}
		case ReadFilterRead:
			if n.ReadAt == nil {
				continue
			}
		}
		matched = append(matched, n)
	}

	// Newest first.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	items := make([]notification.Notification, len(matched))
	for i, n := range matched {
		items[i] = *cloneNotification(n)
	}
	return items, total, nil
}

func (ms *MemoryStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	count := 0
	for _, n := range ms.notifications {
		if n.RecipientUserID == userID && n.ArchivedAt == nil && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (ms *MemoryStorage) MarkRead(ctx context.Context, id string, userID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n, exists := ms.notifications[id]
	if !exists || n.RecipientUserID != userID {
		return ErrNotFound
	}
	if n.ReadAt == nil {
		now := time.Now().UTC()
		n.ReadAt = &now
		n.UpdatedAt = now
	}
	return nil
}

func (ms *MemoryStorage) MarkAllRead(ctx context.Context, userID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now().UTC()
	for _, n := range ms.notifications {
		if n.RecipientUserID == userID && n.ReadAt == nil && n.ArchivedAt == nil {
			readAt := now
			n.ReadAt = &readAt
			n.UpdatedAt = now
		}
	}
	return nil
}

func (ms *MemoryStorage) Archive(ctx context.Context, id string, userID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n, exists := ms.notifications[id]
	if !exists || n.RecipientUserID != userID {
		return ErrNotFound
	}
	if n.ArchivedAt == nil {
		now := time.Now().UTC()
		n.ArchivedAt = &now
		n.UpdatedAt = now
	}
	return nil
}

func (ms *MemoryStorage) Unarchive(ctx context.Context, id string, userID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n, exists := ms.notifications[id]
	if !exists || n.RecipientUserID != userID {
		return ErrNotFound
	}
	n.ArchivedAt = nil
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// eligible is the dispatch predicate shared by FindDue and Claim: active
// lifecycle, not archived, past any scheduled-at, claimable delivery for
// the channel.
func eligible(n *notification.Notification, ch notification.Channel, now time.Time) bool {
	if !n.Status.Active() || n.ArchivedAt != nil || !n.IsDue(now) {
		return false
	}
	d := n.Delivery(ch)
	return d != nil && d.Claimable(now)
}

func (ms *MemoryStorage) FindDue(ctx context.Context, ch notification.Channel, now time.Time, limit int) ([]notification.Notification, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	due := make([]*notification.Notification, 0)
	for _, n := range ms.notifications {
		if eligible(n, ch, now) {
			due = append(due, n)
		}
	}

	// Oldest first within a cycle.
	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	items := make([]notification.Notification, len(due))
	for i, n := range due {
		items[i] = *cloneNotification(n)
	}
	return items, nil
}

func (ms *MemoryStorage) Claim(ctx context.Context, id string, ch notification.Channel, now time.Time) (*notification.Notification, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n, exists := ms.notifications[id]
	if !exists {
		return nil, ErrNotFound
	}
	if !eligible(n, ch, now) {
		return nil, ErrClaimConflict
	}

	d := n.Delivery(ch)
	sentAt := now.UTC()
	d.Status = notification.DeliverySending
	d.SentAt = &sentAt
	d.AttemptCount++
	n.Status = notification.StatusDispatching
	n.UpdatedAt = sentAt

	return cloneNotification(n), nil
}

func (ms *MemoryStorage) UpdateDelivery(ctx context.Context, id string, d notification.Delivery) (*notification.Notification, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	n, exists := ms.notifications[id]
	if !exists {
		return nil, ErrNotFound
	}

	stored := n.Delivery(d.Channel)
	if stored == nil {
		return nil, ErrDeliveryNotFound
	}
	*stored = d
	n.RecomputeStatus()
	n.UpdatedAt = time.Now().UTC()

	return cloneNotification(n), nil
}

func (ms *MemoryStorage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := 0
	for id, n := range ms.notifications {
		if n.IsExpired(now) {
			delete(ms.notifications, id)
			if n.DeduplicationKey != "" {
				delete(ms.dedup, dedupKey(n))
			}
			removed++
		}
	}
	return removed, nil
}

// cloneNotification deep-copies the aggregate so callers can never mutate
// stored state without going through the storage API.
func cloneNotification(n *notification.Notification) *notification.Notification {
	clone := *n
	clone.Channels = slices.Clone(n.Channels)
	clone.Deliveries = slices.Clone(n.Deliveries)
	if n.Data != nil {
		clone.Data = maps.Clone(n.Data)
	}
	return &clone
}

// MemoryPreferences implements PreferencesStorage with a mutex-guarded map.
type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string]policy.Preferences
}

// NewMemoryPreferences creates an empty in-memory preferences storage.
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[string]policy.Preferences)}
}

func (mp *MemoryPreferences) GetPreferences(ctx context.Context, userID string) (policy.Preferences, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if p, exists := mp.prefs[userID]; exists {
		return p, nil
	}
	return policy.DefaultPreferences(), nil
}

func (mp *MemoryPreferences) UpdatePreferences(ctx context.Context, userID string, patch policy.PreferencesPatch) (policy.Preferences, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	current, exists := mp.prefs[userID]
	if !exists {
		current = policy.DefaultPreferences()
	}
	updated := current.Apply(patch)
	mp.prefs[userID] = updated
	return updated, nil
}
