package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifier/notification"
)

func boolPtr(b bool) *bool { return &b }

func testNotification(priority notification.Priority) *notification.Notification {
	return &notification.Notification{
		ID:              "n-1",
		RecipientUserID: "user-1",
		Priority:        priority,
		Title:           "t",
		Body:            "b",
	}
}

// daytime falls outside every quiet-hours window used in these tests.
var daytime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// lateNight falls inside a 22:00-08:00 UTC window.
var lateNight = time.Date(2026, 3, 15, 23, 30, 0, 0, time.UTC)

func nightWindow() QuietHours {
	return QuietHours{Enabled: true, Start: "22:00", End: "08:00", Timezone: "UTC"}
}

func TestResolver_ShouldDeliver(t *testing.T) {
	r := NewResolver()

	t.Run("defaults allow in-app and push", func(t *testing.T) {
		prefs := DefaultPreferences()
		n := testNotification(notification.PriorityNormal)

		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelInApp, daytime))
		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
		assert.False(t, r.ShouldDeliver(prefs, n, notification.ChannelEmail, daytime))
	})

	t.Run("master switch blocks everything non-critical", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.MasterEnabled = false
		n := testNotification(notification.PriorityHigh)

		assert.False(t, r.ShouldDeliver(prefs, n, notification.ChannelInApp, daytime))
		assert.False(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
	})

	t.Run("critical punches through master switch", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.MasterEnabled = false
		n := testNotification(notification.PriorityCritical)

		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
	})

	t.Run("per-notification override denies unconditionally", func(t *testing.T) {
		prefs := DefaultPreferences()
		n := testNotification(notification.PriorityCritical)
		n.Policy.AllowPush = boolPtr(false)

		assert.False(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelInApp, daytime))
	})

	t.Run("topic override wins over channel flag", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.PushEnabled = false
		prefs.TopicOverrides = map[string]ChannelOverrides{
			"billing": {"push": true},
		}
		n := testNotification(notification.PriorityNormal)
		n.Topic = "billing"

		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
	})

	t.Run("topic override can deny an enabled channel", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.TopicOverrides = map[string]ChannelOverrides{
			"marketing": {"push": false},
		}
		n := testNotification(notification.PriorityNormal)
		n.Topic = "marketing"

		assert.False(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelInApp, daytime))
	})

	t.Run("topic override beats priority override", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.TopicOverrides = map[string]ChannelOverrides{
			"billing": {"push": false},
		}
		prefs.PriorityOverrides = map[string]ChannelOverrides{
			"high": {"push": true},
		}
		n := testNotification(notification.PriorityHigh)
		n.Topic = "billing"

		assert.False(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
	})

	t.Run("priority override enables a disabled channel", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.EmailEnabled = false
		prefs.PriorityOverrides = map[string]ChannelOverrides{
			"critical": {"email": true},
		}
		n := testNotification(notification.PriorityCritical)

		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelEmail, daytime))
	})

	t.Run("quiet hours suppress normal push", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.QuietHours = nightWindow()
		n := testNotification(notification.PriorityNormal)

		assert.False(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, lateNight))
		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
	})

	t.Run("quiet hours never touch in-app", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.QuietHours = nightWindow()
		n := testNotification(notification.PriorityNormal)

		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelInApp, lateNight))
	})

	t.Run("critical push ignores quiet hours", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.QuietHours = nightWindow()
		n := testNotification(notification.PriorityCritical)

		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, lateNight))
	})

	t.Run("notification can opt out of quiet hours", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.QuietHours = nightWindow()
		n := testNotification(notification.PriorityNormal)
		n.Policy.RespectQuietHours = boolPtr(false)

		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, lateNight))
	})

	t.Run("topic override bypasses quiet hours", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.QuietHours = nightWindow()
		prefs.TopicOverrides = map[string]ChannelOverrides{
			"security": {"push": true},
		}
		n := testNotification(notification.PriorityNormal)
		n.Topic = "security"

		assert.True(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, lateNight))
	})

	t.Run("critical bypass over disabled push flag", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.PushEnabled = false

		normal := testNotification(notification.PriorityNormal)
		assert.False(t, r.ShouldDeliver(prefs, normal, notification.ChannelPush, daytime))

		critical := testNotification(notification.PriorityCritical)
		assert.True(t, r.ShouldDeliver(prefs, critical, notification.ChannelPush, daytime))
	})

	t.Run("critical bypass can be opted out", func(t *testing.T) {
		prefs := DefaultPreferences()
		prefs.PushEnabled = false
		n := testNotification(notification.PriorityCritical)
		n.Policy.AllowCriticalOverride = boolPtr(false)

		assert.False(t, r.ShouldDeliver(prefs, n, notification.ChannelPush, daytime))
	})
}

func TestPreferences_Apply(t *testing.T) {
	prefs := DefaultPreferences()

	merged := prefs.Apply(PreferencesPatch{
		PushEnabled: boolPtr(false),
		QuietHours:  &QuietHours{Enabled: true, Start: "22:00", End: "08:00", Timezone: "UTC"},
		TopicOverrides: map[string]ChannelOverrides{
			"billing": {"push": true},
		},
	})

	assert.False(t, merged.PushEnabled)
	assert.True(t, merged.MasterEnabled, "untouched fields survive")
	assert.True(t, merged.InAppEnabled)
	assert.True(t, merged.QuietHours.Enabled)
	assert.Equal(t, ChannelOverrides{"push": true}, merged.TopicOverrides["billing"])

	// Second patch replaces the billing key wholesale but keeps other keys.
	again := merged.Apply(PreferencesPatch{
		TopicOverrides: map[string]ChannelOverrides{
			"billing":  {"push": false},
			"security": {"push": true},
		},
	})
	assert.Equal(t, ChannelOverrides{"push": false}, again.TopicOverrides["billing"])
	assert.Equal(t, ChannelOverrides{"push": true}, again.TopicOverrides["security"])
	assert.False(t, again.PushEnabled, "earlier patch still applied")

	// Merging never writes into the receiver's maps, so older copies are
	// safe to read while an update runs.
	assert.Equal(t, ChannelOverrides{"push": true}, merged.TopicOverrides["billing"])
}

func TestPreferences_ApplyLeavesReceiverMapsUntouched(t *testing.T) {
	base := Preferences{
		TopicOverrides:    map[string]ChannelOverrides{"billing": {"push": true}},
		PriorityOverrides: map[string]ChannelOverrides{"low": {"push": false}},
	}

	updated := base.Apply(PreferencesPatch{
		TopicOverrides:    map[string]ChannelOverrides{"billing": {"push": false}},
		PriorityOverrides: map[string]ChannelOverrides{"low": {"push": true}},
	})

	assert.Equal(t, ChannelOverrides{"push": false}, updated.TopicOverrides["billing"])
	assert.Equal(t, ChannelOverrides{"push": true}, updated.PriorityOverrides["low"])
	assert.Equal(t, ChannelOverrides{"push": true}, base.TopicOverrides["billing"])
	assert.Equal(t, ChannelOverrides{"push": false}, base.PriorityOverrides["low"])
}
