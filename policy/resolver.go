package policy

import (
	"time"

	"github.com/dmitrymomot/notifier/notification"
)

// Resolver decides whether a notification should be delivered to a
// recipient on a given channel. The zero value is ready to use.
type Resolver struct{}

// NewResolver creates a policy resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ShouldDeliver applies the policy rules in order; the first matching rule
// wins for the channel. See the package documentation for the rule order.
func (r *Resolver) ShouldDeliver(prefs Preferences, n *notification.Notification, ch notification.Channel, now time.Time) bool {
	critical := n.Priority == notification.PriorityCritical

	// Master kill switch; critical notifications punch through.
	if !prefs.MasterEnabled && !critical {
		return false
	}

	// Per-notification channel override denies unconditionally.
	switch ch {
	case notification.ChannelInApp:
		if n.Policy.AllowInApp != nil && !*n.Policy.AllowInApp {
			return false
		}
	case notification.ChannelPush:
		if n.Policy.AllowPush != nil && !*n.Policy.AllowPush {
			return false
		}
	}

	// Topic and priority overrides are verbatim: they bypass both the
	// global flag and quiet hours.
	if n.Topic != "" {
		if overrides, ok := prefs.TopicOverrides[n.Topic]; ok {
			if allow, ok := overrides[string(ch)]; ok {
				return allow
			}
		}
	}
	if overrides, ok := prefs.PriorityOverrides[string(n.Priority)]; ok {
		if allow, ok := overrides[string(ch)]; ok {
			return allow
		}
	}

	enabled := prefs.ChannelEnabled(ch)

	if ch == notification.ChannelPush {
		if enabled {
			if r.quietHoursApply(prefs, n, now) && !critical {
				return false
			}
			return true
		}
		// Critical bypass: a disabled push flag yields to critical priority
		// unless the notification explicitly opts out.
		if critical && (n.Policy.AllowCriticalOverride == nil || *n.Policy.AllowCriticalOverride) {
			return true
		}
		return false
	}

	return enabled
}

func (r *Resolver) quietHoursApply(prefs Preferences, n *notification.Notification, now time.Time) bool {
	if n.Policy.RespectQuietHours != nil && !*n.Policy.RespectQuietHours {
		return false
	}
	return prefs.QuietHours.ActiveAt(now)
}
