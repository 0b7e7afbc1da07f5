package notifier

import (
	"time"

	"github.com/dmitrymomot/notifier/config"
	"github.com/dmitrymomot/notifier/dispatch"
	"github.com/dmitrymomot/notifier/notification"
)

// Config carries the operator-tunable dispatch settings, loadable from the
// environment with config.Load.
type Config struct {
	DispatchInterval  time.Duration `env:"NOTIFIER_DISPATCH_INTERVAL" envDefault:"10s"`
	DispatchBatchSize int           `env:"NOTIFIER_DISPATCH_BATCH_SIZE" envDefault:"30"`
	DefaultMaxRetries int           `env:"NOTIFIER_MAX_RETRIES" envDefault:"4"`
	RetryBaseDelay    time.Duration `env:"NOTIFIER_RETRY_BASE_DELAY" envDefault:"30s"`
	RetryMaxDelay     time.Duration `env:"NOTIFIER_RETRY_MAX_DELAY" envDefault:"30m"`

	// DisabledChannels lists channels whose kill switch starts flipped,
	// e.g. "push,sms".
	DisabledChannels []string `env:"NOTIFIER_DISABLED_CHANNELS" envSeparator:","`
}

// LoadConfig reads the dispatch settings from the environment through the
// shared config loader.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SchedulerOptions translates the config into dispatch scheduler options.
func (c Config) SchedulerOptions() []dispatch.SchedulerOption {
	disabled := make([]notification.Channel, 0, len(c.DisabledChannels))
	for _, raw := range c.DisabledChannels {
		ch := notification.Channel(raw)
		if ch.Valid() {
			disabled = append(disabled, ch)
		}
	}

	return []dispatch.SchedulerOption{
		dispatch.WithInterval(c.DispatchInterval),
		dispatch.WithBatchSize(c.DispatchBatchSize),
		dispatch.WithDefaultMaxRetries(c.DefaultMaxRetries),
		dispatch.WithBackoff(dispatch.LadderBackoff{
			Base: c.RetryBaseDelay,
			Max:  c.RetryMaxDelay,
		}),
		dispatch.WithDisabledChannels(disabled...),
	}
}
