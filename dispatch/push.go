package dispatch

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifier/device"
	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/push"
)

// PushProcessor delivers push notifications through a provider gateway,
// fanning a notification out to every active device the recipient has.
type PushProcessor struct {
	devices  device.Registry
	client   push.Client
	provider device.Provider
	logger   *slog.Logger
}

// PushProcessorOption configures a PushProcessor.
type PushProcessorOption func(*PushProcessor)

// WithPushLogger sets the logger for the push processor.
func WithPushLogger(logger *slog.Logger) PushProcessorOption {
	return func(p *PushProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPushProvider sets which provider's tokens the processor targets.
func WithPushProvider(provider device.Provider) PushProcessorOption {
	return func(p *PushProcessor) {
		if provider != "" {
			p.provider = provider
		}
	}
}

// NewPushProcessor creates a push channel processor.
func NewPushProcessor(devices device.Registry, client push.Client, opts ...PushProcessorOption) *PushProcessor {
	p := &PushProcessor{
		devices:  devices,
		client:   client,
		provider: device.ProviderExpo,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PushProcessor) Channel() notification.Channel { return notification.ChannelPush }

// Process sends the notification to every active device token. The attempt
// counts as delivered when at least one token accepts the message. Tokens
// the provider reports as permanently dead are deactivated as a side effect
// so later attempts stop targeting them.
func (p *PushProcessor) Process(ctx context.Context, n *notification.Notification) Result {
	tokens, err := p.devices.ActiveTokens(ctx, n.RecipientUserID, p.provider)
	if err != nil {
		return Retry(ErrorCodeDeviceLookupFailed, err.Error())
	}
	if len(tokens) == 0 {
		// The user may register a device later; keep retrying until the
		// budget runs out.
		return Retry(ErrorCodeNoActiveDevice, "recipient has no active push devices")
	}

	messages := make([]push.Message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, push.Message{
			To:       token,
			Title:    n.Title,
			Body:     n.Body,
			Data:     pushPayload(n),
			Priority: pushPriority(n.Priority),
			Sound:    "default",
		})
	}

	results, err := p.client.SendBatch(ctx, messages)
	if err != nil {
		return Retry("provider_unreachable", err.Error())
	}

	var delivered Result
	var firstFailure push.Result
	anyOK := false

	for i, res := range results {
		if res.OK {
			if !anyOK {
				delivered = Delivered(res.ProviderMessageID)
				anyOK = true
			}
			continue
		}

		if res.PermanentTokenFailure() {
			if err := p.devices.Deactivate(ctx, messages[i].To, res.ErrorCode); err != nil {
				p.logger.WarnContext(ctx, "failed to deactivate dead push token",
					slog.String("user_id", n.RecipientUserID),
					slog.String("error", err.Error()))
			}
		}
		if firstFailure.ErrorCode == "" && firstFailure.ErrorMessage == "" {
			firstFailure = res
		}
	}

	if anyOK {
		return delivered
	}
	return Retry(firstFailure.ErrorCode, firstFailure.ErrorMessage)
}

func pushPayload(n *notification.Notification) map[string]any {
	data := make(map[string]any, len(n.Data)+2)
	for k, v := range n.Data {
		data[k] = v
	}
	data["notification_id"] = n.ID
	data["event_key"] = n.EventKey
	return data
}

func pushPriority(p notification.Priority) string {
	switch p {
	case notification.PriorityCritical, notification.PriorityHigh:
		return "high"
	default:
		return "default"
	}
}
