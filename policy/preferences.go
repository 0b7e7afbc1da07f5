package policy

import (
	"maps"

	"github.com/dmitrymomot/notifier/notification"
)

// ChannelOverrides maps a channel name to an explicit allow/deny decision.
// Absent keys mean "no override".
type ChannelOverrides map[string]bool

// QuietHours is a recipient-configured daily window during which
// non-critical push is suppressed. The window may wrap midnight
// (e.g. 22:00 to 08:00).
type QuietHours struct {
	Enabled  bool   `json:"enabled" bson:"enabled"`
	Start    string `json:"start" bson:"start"` // "HH:MM"
	End      string `json:"end" bson:"end"`     // "HH:MM"
	Timezone string `json:"timezone" bson:"timezone"`
}

// Preferences holds a user's delivery preferences. It is read-only from the
// engine's perspective; updates come through the facade with shallow-merge
// semantics.
type Preferences struct {
	MasterEnabled bool `json:"master_enabled" bson:"master_enabled"`
	InAppEnabled  bool `json:"in_app_enabled" bson:"in_app_enabled"`
	PushEnabled   bool `json:"push_enabled" bson:"push_enabled"`
	EmailEnabled  bool `json:"email_enabled" bson:"email_enabled"`
	SMSEnabled    bool `json:"sms_enabled" bson:"sms_enabled"`

	QuietHours QuietHours `json:"quiet_hours" bson:"quiet_hours"`

	// TopicOverrides maps a topic string to per-channel overrides,
	// PriorityOverrides maps a priority level likewise. Both are shallow
	// merged on update: a key present in the patch replaces the whole
	// per-channel map for that key.
	TopicOverrides    map[string]ChannelOverrides `json:"topic_overrides,omitempty" bson:"topic_overrides,omitempty"`
	PriorityOverrides map[string]ChannelOverrides `json:"priority_overrides,omitempty" bson:"priority_overrides,omitempty"`
}

// DefaultPreferences returns the preferences applied to users who never
// configured anything: in-app and push on, email and sms off.
func DefaultPreferences() Preferences {
	return Preferences{
		MasterEnabled: true,
		InAppEnabled:  true,
		PushEnabled:   true,
		EmailEnabled:  false,
		SMSEnabled:    false,
	}
}

// ChannelEnabled returns the global preference flag for the channel.
func (p Preferences) ChannelEnabled(ch notification.Channel) bool {
	switch ch {
	case notification.ChannelInApp:
		return p.InAppEnabled
	case notification.ChannelPush:
		return p.PushEnabled
	case notification.ChannelEmail:
		return p.EmailEnabled
	case notification.ChannelSMS:
		return p.SMSEnabled
	}
	return false
}

// PreferencesPatch is a partial preferences update. Nil fields are left
// untouched; override maps are shallow merged key by key.
type PreferencesPatch struct {
	MasterEnabled *bool `json:"master_enabled,omitempty"`
	InAppEnabled  *bool `json:"in_app_enabled,omitempty"`
	PushEnabled   *bool `json:"push_enabled,omitempty"`
	EmailEnabled  *bool `json:"email_enabled,omitempty"`
	SMSEnabled    *bool `json:"sms_enabled,omitempty"`

	QuietHours *QuietHours `json:"quiet_hours,omitempty"`

	TopicOverrides    map[string]ChannelOverrides `json:"topic_overrides,omitempty"`
	PriorityOverrides map[string]ChannelOverrides `json:"priority_overrides,omitempty"`
}

// Apply merges the patch into the preferences and returns the result. The
// receiver's override maps are never written to: merged maps are fresh
// copies, so snapshots handed out earlier stay safe for concurrent reads.
func (p Preferences) Apply(patch PreferencesPatch) Preferences {
	if patch.MasterEnabled != nil {
		p.MasterEnabled = *patch.MasterEnabled
	}
	if patch.InAppEnabled != nil {
		p.InAppEnabled = *patch.InAppEnabled
	}
	if patch.PushEnabled != nil {
		p.PushEnabled = *patch.PushEnabled
	}
	if patch.EmailEnabled != nil {
		p.EmailEnabled = *patch.EmailEnabled
	}
	if patch.SMSEnabled != nil {
		p.SMSEnabled = *patch.SMSEnabled
	}
	if patch.QuietHours != nil {
		p.QuietHours = *patch.QuietHours
	}
	if len(patch.TopicOverrides) > 0 {
		merged := maps.Clone(p.TopicOverrides)
		if merged == nil {
			merged = make(map[string]ChannelOverrides, len(patch.TopicOverrides))
		}
		maps.Copy(merged, patch.TopicOverrides)
		p.TopicOverrides = merged
	}
	if len(patch.PriorityOverrides) > 0 {
		merged := maps.Clone(p.PriorityOverrides)
		if merged == nil {
			merged = make(map[string]ChannelOverrides, len(patch.PriorityOverrides))
		}
		maps.Copy(merged, patch.PriorityOverrides)
		p.PriorityOverrides = merged
	}
	return p
}
