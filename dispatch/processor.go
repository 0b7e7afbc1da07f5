package dispatch

import (
	"context"

	"github.com/dmitrymomot/notifier/notification"
)

// Machine-readable error codes recorded on delivery records.
const (
	ErrorCodePolicySuppressed   = "policy_suppressed"
	ErrorCodeNoActiveDevice     = "no_active_device"
	ErrorCodeDeviceLookupFailed = "device_lookup_failed"
	ErrorCodeChannelUnsupported = "channel_unsupported"
)

// DisabledErrorCode returns the error code recorded on deliveries cancelled
// by an operator kill switch, e.g. "push_globally_disabled".
func DisabledErrorCode(ch notification.Channel) string {
	return string(ch) + "_globally_disabled"
}

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	// OutcomeDelivered means the provider accepted the message.
	OutcomeDelivered Outcome = iota
	// OutcomeRetry means the attempt failed transiently and should be
	// rescheduled, budget permitting.
	OutcomeRetry
	// OutcomeCancelled means the delivery cannot ever succeed and must not
	// be retried.
	OutcomeCancelled
)

// Result is what a processor reports back for a claimed delivery.
type Result struct {
	Outcome           Outcome
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
}

// Delivered builds a success result carrying the provider's message id.
func Delivered(providerMessageID string) Result {
	return Result{Outcome: OutcomeDelivered, ProviderMessageID: providerMessageID}
}

// Retry builds a transient-failure result.
func Retry(code, message string) Result {
	return Result{Outcome: OutcomeRetry, ErrorCode: code, ErrorMessage: message}
}

// Cancelled builds a terminal no-retry result.
func Cancelled(code, message string) Result {
	return Result{Outcome: OutcomeCancelled, ErrorCode: code, ErrorMessage: message}
}

// Processor attempts delivery on a single channel. The scheduler claims the
// delivery before calling Process, so implementations never touch storage;
// they report the attempt result and the scheduler persists it.
type Processor interface {
	// Channel returns the channel this processor serves.
	Channel() notification.Channel

	// Process attempts delivery of a claimed notification.
	Process(ctx context.Context, n *notification.Notification) Result
}

// StubProcessor acknowledges deliveries for channels without a wired
// provider. It cancels every delivery with a channel_unsupported code so
// aggregates on those channels settle instead of retrying forever.
type StubProcessor struct {
	channel notification.Channel
}

// NewStubProcessor creates a placeholder processor for the channel.
func NewStubProcessor(ch notification.Channel) *StubProcessor {
	return &StubProcessor{channel: ch}
}

func (p *StubProcessor) Channel() notification.Channel { return p.channel }

func (p *StubProcessor) Process(ctx context.Context, n *notification.Notification) Result {
	return Cancelled(ErrorCodeChannelUnsupported, "no provider configured for channel "+string(p.channel))
}
