package realtime

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifier/notification"
)

// EventNotificationDelivered is the event name used for in-app deliveries.
const EventNotificationDelivered = "notification.delivered"

// Event is the formatted payload published to a recipient's live
// connection on successful in-app delivery.
type Event struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Body      string                `json:"body"`
	EventKey  string                `json:"event_key"`
	Topic     string                `json:"topic,omitempty"`
	Priority  notification.Priority `json:"priority"`
	Data      map[string]any        `json:"data,omitempty"`
	Status    notification.Status   `json:"status"`
	ReadAt    *time.Time            `json:"read_at,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// NewEvent formats a notification for live publication.
func NewEvent(n *notification.Notification) Event {
	return Event{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		EventKey:  n.EventKey,
		Topic:     n.Topic,
		Priority:  n.Priority,
		Data:      n.Data,
		Status:    n.Status,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

// Publisher pushes events to a recipient's live connection channel.
type Publisher interface {
	Publish(ctx context.Context, userID, eventName string, event Event) error
}

// NoOpPublisher discards every event. Useful when no live transport is
// attached.
type NoOpPublisher struct{}

// Publish does nothing and returns nil.
func (NoOpPublisher) Publish(ctx context.Context, userID, eventName string, event Event) error {
	return nil
}
