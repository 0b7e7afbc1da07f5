package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/policy"
	"github.com/dmitrymomot/notifier/store"
)

type fakeProcessor struct {
	ch     notification.Channel
	result Result
	calls  int
}

func (f *fakeProcessor) Channel() notification.Channel { return f.ch }

func (f *fakeProcessor) Process(ctx context.Context, n *notification.Notification) Result {
	f.calls++
	return f.result
}

// zeroBackoff makes rescheduled deliveries claimable on the next cycle.
type zeroBackoff struct{}

func (zeroBackoff) NextInterval(attempt int) time.Duration { return 0 }

func dispatchTestNotification(t *testing.T, channels ...notification.Channel) *notification.Notification {
	t.Helper()
	n, err := notification.New(notification.CreateParams{
		Audience:        notification.AudienceUser,
		RecipientUserID: "user-1",
		EventKey:        "test.event",
		Title:           "Title",
		Body:            "Body",
		Channels:        channels,
	})
	require.NoError(t, err)
	return n
}

func TestNewScheduler(t *testing.T) {
	t.Run("requires storage", func(t *testing.T) {
		_, err := NewScheduler(nil, nil)
		assert.ErrorIs(t, err, ErrStorageNil)
	})

	t.Run("start requires processors", func(t *testing.T) {
		s, err := NewScheduler(store.NewMemoryStorage(), nil)
		require.NoError(t, err)
		assert.ErrorIs(t, s.Start(context.Background()), ErrNoProcessors)
	})
}

func TestScheduler_RunCycle_Delivers(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	proc := &fakeProcessor{ch: notification.ChannelInApp, result: Delivered("")}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(), WithProcessors(proc))
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelInApp)
	require.NoError(t, storage.Create(ctx, n))

	s.RunCycle(ctx)

	got, err := storage.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, proc.calls)
	assert.Equal(t, notification.StatusCompleted, got.Status)

	d := got.Delivery(notification.ChannelInApp)
	assert.Equal(t, notification.DeliveryDelivered, d.Status)
	assert.Equal(t, 1, d.AttemptCount)

	// A second cycle finds nothing claimable.
	s.RunCycle(ctx)
	assert.Equal(t, 1, proc.calls)
}

func TestScheduler_RunCycle_SchedulesRetry(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	proc := &fakeProcessor{
		ch:     notification.ChannelPush,
		result: Retry(ErrorCodeNoActiveDevice, "no devices"),
	}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(), WithProcessors(proc))
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelPush)
	require.NoError(t, storage.Create(ctx, n))

	before := time.Now().UTC()
	s.RunCycle(ctx)

	got, err := storage.Get(ctx, n.ID)
	require.NoError(t, err)

	d := got.Delivery(notification.ChannelPush)
	assert.Equal(t, notification.DeliveryQueued, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	assert.Equal(t, ErrorCodeNoActiveDevice, d.ErrorCode)
	require.NotNil(t, d.NextRetryAt)
	assert.True(t, d.NextRetryAt.After(before.Add(29*time.Second)), "first retry waits the base interval")

	// The recorded failure counts against the aggregate even though the
	// delivery itself is queued for another attempt.
	assert.Equal(t, notification.StatusPartiallySent, got.Status)

	// Delivery is not due again yet, so another cycle leaves it alone.
	s.RunCycle(ctx)
	assert.Equal(t, 1, proc.calls)
}

func TestScheduler_PartialDeliveryPendingRetry(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	inAppProc := &fakeProcessor{ch: notification.ChannelInApp, result: Delivered("")}
	pushProc := &fakeProcessor{
		ch:     notification.ChannelPush,
		result: Retry(ErrorCodeNoActiveDevice, "no active device tokens"),
	}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(), WithProcessors(inAppProc, pushProc))
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelInApp, notification.ChannelPush)
	require.NoError(t, storage.Create(ctx, n))

	s.RunCycle(ctx)

	got, err := storage.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPartiallySent, got.Status)
	assert.Equal(t, notification.DeliveryDelivered, got.Delivery(notification.ChannelInApp).Status)

	push := got.Delivery(notification.ChannelPush)
	assert.Equal(t, notification.DeliveryQueued, push.Status)
	require.NotNil(t, push.NextRetryAt)
	assert.True(t, push.NextRetryAt.After(time.Now().UTC()))

	// The push delivery stays claimable once its retry delay elapses.
	due := time.Now().UTC().Add(time.Hour)
	found, err := storage.FindDue(ctx, notification.ChannelPush, due, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, n.ID, found[0].ID)
}

func TestScheduler_RetryBudgetExhaustion(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	proc := &fakeProcessor{
		ch:     notification.ChannelPush,
		result: Retry("provider_unreachable", "timeout"),
	}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(),
		WithProcessors(proc),
		WithBackoff(zeroBackoff{}),
		WithDefaultMaxRetries(2),
	)
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelPush)
	require.NoError(t, storage.Create(ctx, n))

	s.RunCycle(ctx)
	got, err := storage.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.DeliveryQueued, got.Delivery(notification.ChannelPush).Status)

	s.RunCycle(ctx)
	got, err = storage.Get(ctx, n.ID)
	require.NoError(t, err)

	d := got.Delivery(notification.ChannelPush)
	assert.Equal(t, notification.DeliveryFailed, d.Status)
	assert.Equal(t, 2, d.AttemptCount)
	assert.Equal(t, notification.StatusPartiallySent, got.Status)

	// Terminal failure is never retried.
	s.RunCycle(ctx)
	assert.Equal(t, 2, proc.calls)
}

func TestScheduler_PerNotificationRetryOverride(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	proc := &fakeProcessor{
		ch:     notification.ChannelPush,
		result: Retry("provider_unreachable", "timeout"),
	}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(),
		WithProcessors(proc),
		WithBackoff(zeroBackoff{}),
		WithDefaultMaxRetries(4),
	)
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelPush)
	one := 1
	n.Policy.MaxRetries = &one
	require.NoError(t, storage.Create(ctx, n))

	s.RunCycle(ctx)

	got, err := storage.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.DeliveryFailed, got.Delivery(notification.ChannelPush).Status)
	assert.Equal(t, 1, proc.calls)
}

func TestScheduler_PolicySuppression(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()
	prefs := store.NewMemoryPreferences()

	off := false
	_, err := prefs.UpdatePreferences(ctx, "user-1", policy.PreferencesPatch{PushEnabled: &off})
	require.NoError(t, err)

	pushProc := &fakeProcessor{ch: notification.ChannelPush, result: Delivered("ticket")}
	inAppProc := &fakeProcessor{ch: notification.ChannelInApp, result: Delivered("")}
	s, err := NewScheduler(storage, prefs, WithProcessors(pushProc, inAppProc))
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelPush, notification.ChannelInApp)
	require.NoError(t, storage.Create(ctx, n))

	s.RunCycle(ctx)

	got, err := storage.Get(ctx, n.ID)
	require.NoError(t, err)

	push := got.Delivery(notification.ChannelPush)
	assert.Equal(t, notification.DeliveryCancelled, push.Status)
	assert.Equal(t, ErrorCodePolicySuppressed, push.ErrorCode)
	assert.Zero(t, pushProc.calls, "suppressed deliveries never reach the provider")

	assert.Equal(t, notification.DeliveryDelivered, got.Delivery(notification.ChannelInApp).Status)
	assert.Equal(t, notification.StatusCompleted, got.Status)
}

func TestScheduler_KillSwitchSweep(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	proc := &fakeProcessor{ch: notification.ChannelPush, result: Delivered("ticket")}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(), WithProcessors(proc))
	require.NoError(t, err)

	first := dispatchTestNotification(t, notification.ChannelPush)
	second := dispatchTestNotification(t, notification.ChannelPush)
	require.NoError(t, storage.Create(ctx, first))
	require.NoError(t, storage.Create(ctx, second))

	s.DisableChannel(notification.ChannelPush)
	s.RunCycle(ctx)

	for _, id := range []string{first.ID, second.ID} {
		got, err := storage.Get(ctx, id)
		require.NoError(t, err)

		d := got.Delivery(notification.ChannelPush)
		assert.Equal(t, notification.DeliveryCancelled, d.Status)
		assert.Equal(t, "push_globally_disabled", d.ErrorCode)
		assert.Equal(t, notification.StatusCancelled, got.Status)
	}
	assert.Zero(t, proc.calls)

	// Re-enabling does not resurrect swept deliveries.
	s.EnableChannel(notification.ChannelPush)
	s.RunCycle(ctx)
	assert.Zero(t, proc.calls)
}

func TestScheduler_ScheduledNotificationWaits(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	proc := &fakeProcessor{ch: notification.ChannelPush, result: Delivered("ticket")}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(), WithProcessors(proc))
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelPush)
	future := time.Now().UTC().Add(time.Hour)
	n.ScheduledAt = &future
	require.NoError(t, storage.Create(ctx, n))

	s.RunCycle(ctx)

	got, err := storage.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Zero(t, proc.calls)
	assert.Zero(t, got.Delivery(notification.ChannelPush).AttemptCount)
	assert.Equal(t, notification.StatusQueued, got.Status)
}

func TestScheduler_PurgesExpired(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	proc := &fakeProcessor{ch: notification.ChannelInApp, result: Delivered("")}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(), WithProcessors(proc))
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelInApp)
	past := time.Now().UTC().Add(-time.Minute)
	n.ExpiresAt = &past
	require.NoError(t, storage.Create(ctx, n))

	s.RunCycle(ctx)

	_, err = storage.Get(ctx, n.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScheduler_Deliver_LostRaceIsSilent(t *testing.T) {
	ctx := context.Background()
	storage := store.NewMemoryStorage()

	proc := &fakeProcessor{ch: notification.ChannelInApp, result: Delivered("")}
	s, err := NewScheduler(storage, store.NewMemoryPreferences(), WithProcessors(proc))
	require.NoError(t, err)

	n := dispatchTestNotification(t, notification.ChannelInApp)
	require.NoError(t, storage.Create(ctx, n))

	require.NoError(t, s.Deliver(ctx, n.ID, notification.ChannelInApp))
	require.NoError(t, s.Deliver(ctx, n.ID, notification.ChannelInApp), "settled delivery claims are skipped, not errors")
	assert.Equal(t, 1, proc.calls)
}
