package dispatch

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/realtime"
)

// InAppProcessor delivers in-app notifications. Delivery means the record is
// persisted and visible in the recipient's feed; the realtime publish is a
// best-effort nudge to connected clients and never fails the delivery.
type InAppProcessor struct {
	publisher realtime.Publisher
	logger    *slog.Logger
}

// InAppProcessorOption configures an InAppProcessor.
type InAppProcessorOption func(*InAppProcessor)

// WithInAppLogger sets the logger for the in-app processor.
func WithInAppLogger(logger *slog.Logger) InAppProcessorOption {
	return func(p *InAppProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewInAppProcessor creates an in-app channel processor. A nil publisher
// defaults to the no-op publisher.
func NewInAppProcessor(publisher realtime.Publisher, opts ...InAppProcessorOption) *InAppProcessor {
	if publisher == nil {
		publisher = realtime.NoOpPublisher{}
	}
	p := &InAppProcessor{
		publisher: publisher,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *InAppProcessor) Channel() notification.Channel { return notification.ChannelInApp }

func (p *InAppProcessor) Process(ctx context.Context, n *notification.Notification) Result {
	if n.RecipientUserID != "" {
		event := realtime.NewEvent(n)
		if err := p.publisher.Publish(ctx, n.RecipientUserID, realtime.EventNotificationDelivered, event); err != nil {
			p.logger.WarnContext(ctx, "failed to publish realtime notification event",
				slog.String("notification_id", n.ID),
				slog.String("user_id", n.RecipientUserID),
				slog.String("error", err.Error()))
		}
	}
	return Delivered("")
}
