package dispatch

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifier/notification"
)

// SchedulerOption is a functional option for configuring the scheduler.
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	interval          time.Duration
	batchSize         int
	defaultMaxRetries int
	backoff           BackoffStrategy
	logger            *slog.Logger
	processors        []Processor
	disabled          map[notification.Channel]bool
}

// WithInterval sets how often the scheduler scans for due deliveries.
func WithInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithBatchSize caps how many due deliveries one cycle claims per channel.
func WithBatchSize(n int) SchedulerOption {
	return func(o *schedulerOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithDefaultMaxRetries sets the attempt budget for notifications that do
// not carry their own override.
func WithDefaultMaxRetries(n int) SchedulerOption {
	return func(o *schedulerOptions) {
		if n > 0 {
			o.defaultMaxRetries = n
		}
	}
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(b BackoffStrategy) SchedulerOption {
	return func(o *schedulerOptions) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProcessors registers channel processors.
func WithProcessors(processors ...Processor) SchedulerOption {
	return func(o *schedulerOptions) {
		for _, p := range processors {
			if p != nil {
				o.processors = append(o.processors, p)
			}
		}
	}
}

// WithDisabledChannels starts the scheduler with kill switches already
// flipped for the given channels.
func WithDisabledChannels(channels ...notification.Channel) SchedulerOption {
	return func(o *schedulerOptions) {
		for _, ch := range channels {
			o.disabled[ch] = true
		}
	}
}
