package notification

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Audience describes who a notification targets.
type Audience string

const (
	AudienceUser      Audience = "user"
	AudienceCompany   Audience = "company"
	AudienceBroadcast Audience = "broadcast"
)

// Channel is a delivery mechanism.
type Channel string

const (
	ChannelInApp   Channel = "in_app"
	ChannelPush    Channel = "push"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// KnownChannels lists every channel the engine understands, in dispatch
// priority order (provider-backed channels first, synchronous last).
var KnownChannels = []Channel{ChannelPush, ChannelEmail, ChannelSMS, ChannelWebhook, ChannelInApp}

// Valid reports whether the channel is one the engine understands.
func (c Channel) Valid() bool {
	return slices.Contains(KnownChannels, c)
}

// Synchronous reports whether delivery on this channel happens in-process
// rather than through an external provider. Synchronous channels still go
// through the claim path; they are just processed at dispatch time instead
// of waiting for a scheduler tick.
func (c Channel) Synchronous() bool {
	return c == ChannelInApp
}

// Priority is the notification urgency level.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether the priority is a known level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// DeliveryPolicy carries per-notification overrides evaluated by the policy
// resolver. Pointer fields distinguish "unset" from an explicit false.
type DeliveryPolicy struct {
	AllowInApp            *bool `json:"allow_in_app,omitempty" bson:"allow_in_app,omitempty"`
	AllowPush             *bool `json:"allow_push,omitempty" bson:"allow_push,omitempty"`
	RespectQuietHours     *bool `json:"respect_quiet_hours,omitempty" bson:"respect_quiet_hours,omitempty"`
	AllowCriticalOverride *bool `json:"allow_critical_override,omitempty" bson:"allow_critical_override,omitempty"`
	MaxRetries            *int  `json:"max_retries,omitempty" bson:"max_retries,omitempty"`
}

// Notification is the aggregate root: a logical message to a recipient,
// requested on one or more channels.
type Notification struct {
	ID                 string         `json:"id" bson:"_id"`
	Audience           Audience       `json:"audience" bson:"audience"`
	RecipientUserID    string         `json:"recipient_user_id,omitempty" bson:"recipient_user_id,omitempty"`
	RecipientCompanyID string         `json:"recipient_company_id,omitempty" bson:"recipient_company_id,omitempty"`
	EventKey           string         `json:"event_key" bson:"event_key"`
	Topic              string         `json:"topic,omitempty" bson:"topic,omitempty"`
	Priority           Priority       `json:"priority" bson:"priority"`
	Title              string         `json:"title" bson:"title"`
	Body               string         `json:"body" bson:"body"`
	Data               map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Channels           []Channel      `json:"channels" bson:"channels"`
	Deliveries         []Delivery     `json:"deliveries" bson:"deliveries"`
	Status             Status         `json:"status" bson:"status"`
	Policy             DeliveryPolicy `json:"delivery_policy,omitempty" bson:"delivery_policy,omitempty"`
	DeduplicationKey   string         `json:"deduplication_key,omitempty" bson:"deduplication_key,omitempty"`
	ScheduledAt        *time.Time     `json:"scheduled_at,omitempty" bson:"scheduled_at,omitempty"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	ReadAt             *time.Time     `json:"read_at,omitempty" bson:"read_at,omitempty"`
	ArchivedAt         *time.Time     `json:"archived_at,omitempty" bson:"archived_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" bson:"updated_at"`
}

// CreateParams holds everything needed to build a new Notification.
type CreateParams struct {
	Audience           Audience
	RecipientUserID    string
	RecipientCompanyID string
	EventKey           string
	Topic              string
	Priority           Priority
	Title              string
	Body               string
	Data               map[string]any
	Channels           []Channel
	Policy             DeliveryPolicy
	DeduplicationKey   string
	ScheduledAt        *time.Time
	ExpiresAt          *time.Time
}

// New builds a Notification aggregate with one Delivery per requested
// channel. Unknown channels are dropped; if nothing survives the filter the
// in-app channel is used. Every delivery starts queued.
func New(params CreateParams) (*Notification, error) {
	if params.Title == "" || params.Body == "" {
		return nil, ErrMissingContent
	}
	if params.EventKey == "" {
		return nil, ErrMissingEventKey
	}
	if params.Audience == AudienceUser && params.RecipientUserID == "" {
		return nil, ErrMissingRecipient
	}

	priority := params.Priority
	if !priority.Valid() {
		priority = PriorityNormal
	}

	channels := normalizeChannels(params.Channels)
	now := time.Now().UTC()

	deliveries := make([]Delivery, 0, len(channels))
	for _, ch := range channels {
		deliveries = append(deliveries, newDelivery(ch, now))
	}

	n := &Notification{
		ID:                 uuid.New().String(),
		Audience:           params.Audience,
		RecipientUserID:    params.RecipientUserID,
		RecipientCompanyID: params.RecipientCompanyID,
		EventKey:           params.EventKey,
		Topic:              params.Topic,
		Priority:           priority,
		Title:              params.Title,
		Body:               params.Body,
		Data:               params.Data,
		Channels:           channels,
		Deliveries:         deliveries,
		Policy:             params.Policy,
		DeduplicationKey:   params.DeduplicationKey,
		ScheduledAt:        params.ScheduledAt,
		ExpiresAt:          params.ExpiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	n.RecomputeStatus()

	return n, nil
}

// normalizeChannels drops unknown channels and duplicates, preserving the
// engine's dispatch priority order. Falls back to in-app when nothing is left.
func normalizeChannels(requested []Channel) []Channel {
	channels := make([]Channel, 0, len(requested))
	for _, known := range KnownChannels {
		if slices.Contains(requested, known) && !slices.Contains(channels, known) {
			channels = append(channels, known)
		}
	}
	if len(channels) == 0 {
		channels = []Channel{ChannelInApp}
	}
	return channels
}

// Delivery returns the delivery record for the given channel, or nil if the
// notification was not requested on that channel.
func (n *Notification) Delivery(ch Channel) *Delivery {
	for i := range n.Deliveries {
		if n.Deliveries[i].Channel == ch {
			return &n.Deliveries[i]
		}
	}
	return nil
}

// IsExpired reports whether the notification is past its TTL.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// IsDue reports whether the notification is eligible for dispatch with
// respect to its optional ScheduledAt.
func (n *Notification) IsDue(now time.Time) bool {
	return n.ScheduledAt == nil || !n.ScheduledAt.After(now)
}

// MarkRead records the read timestamp. Reading is user-facing state and is
// independent of the delivery lifecycle.
func (n *Notification) MarkRead() {
	if n.ReadAt == nil {
		now := time.Now().UTC()
		n.ReadAt = &now
	}
}

// MaxRetries returns the per-notification attempt budget, falling back to
// the given default when no override is set.
func (n *Notification) MaxRetries(fallback int) int {
	if n.Policy.MaxRetries != nil && *n.Policy.MaxRetries > 0 {
		return *n.Policy.MaxRetries
	}
	return fallback
}

// Validate checks the aggregate invariant: exactly one delivery per
// requested channel, no extras and no duplicates.
func (n *Notification) Validate() error {
	if len(n.Deliveries) != len(n.Channels) {
		return ErrChannelMismatch
	}
	seen := make(map[Channel]bool, len(n.Deliveries))
	for _, d := range n.Deliveries {
		if seen[d.Channel] {
			return ErrChannelMismatch
		}
		seen[d.Channel] = true
		if !slices.Contains(n.Channels, d.Channel) {
			return ErrChannelMismatch
		}
	}
	return nil
}
