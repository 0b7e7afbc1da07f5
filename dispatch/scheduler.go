package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/policy"
	"github.com/dmitrymomot/notifier/store"
)

// Scheduler is the delivery engine loop. On every tick it walks the known
// channels in priority order, claims due deliveries in batches and hands
// them to the registered processors.
type Scheduler struct {
	storage    store.Storage
	prefs      store.PreferencesStorage
	resolver   *policy.Resolver
	processors map[notification.Channel]Processor
	backoff    BackoffStrategy

	interval          time.Duration
	batchSize         int
	defaultMaxRetries int
	logger            *slog.Logger

	mu       sync.RWMutex // guards disabled
	disabled map[notification.Channel]bool

	running atomic.Bool
}

// NewScheduler creates a delivery scheduler. Preferences storage may be nil,
// in which case every recipient gets the default preferences.
func NewScheduler(storage store.Storage, prefs store.PreferencesStorage, opts ...SchedulerOption) (*Scheduler, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	options := &schedulerOptions{
		interval:          10 * time.Second,
		batchSize:         30,
		defaultMaxRetries: 4,
		backoff:           DefaultBackoffStrategy(),
		logger:            slog.Default(),
		disabled:          make(map[notification.Channel]bool),
	}
	for _, opt := range opts {
		opt(options)
	}

	processors := make(map[notification.Channel]Processor, len(options.processors))
	for _, p := range options.processors {
		processors[p.Channel()] = p
	}

	return &Scheduler{
		storage:           storage,
		prefs:             prefs,
		resolver:          policy.NewResolver(),
		processors:        processors,
		backoff:           options.backoff,
		interval:          options.interval,
		batchSize:         options.batchSize,
		defaultMaxRetries: options.defaultMaxRetries,
		logger:            options.logger,
		disabled:          options.disabled,
	}, nil
}

// RegisterProcessor adds a channel processor. Later registrations for the
// same channel replace earlier ones. Must be called before Start.
func (s *Scheduler) RegisterProcessor(p Processor) {
	if p == nil {
		return
	}
	s.processors[p.Channel()] = p
}

// DisableChannel flips the operator kill switch for a channel. Queued
// deliveries on the channel are bulk-cancelled on the next cycle.
func (s *Scheduler) DisableChannel(ch notification.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[ch] = true
}

// EnableChannel clears the kill switch. Deliveries cancelled while the
// channel was disabled stay cancelled.
func (s *Scheduler) EnableChannel(ch notification.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disabled, ch)
}

func (s *Scheduler) channelDisabled(ch notification.Channel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabled[ch]
}

// Start runs the dispatch loop until the context is cancelled. Cycles run
// on a single goroutine, so a slow cycle simply delays the next tick rather
// than overlapping with it.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.processors) == 0 {
		return ErrNoProcessors
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer s.running.Store(false)

	s.logger.InfoContext(ctx, "dispatch scheduler started",
		slog.Duration("interval", s.interval),
		slog.Int("batch_size", s.batchSize))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "dispatch scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// Run returns a function suitable for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		err := s.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// RunCycle executes a single dispatch cycle: drain every channel in priority
// order, then purge expired notifications. A storage scan failure aborts the
// rest of the cycle; the next tick starts fresh.
func (s *Scheduler) RunCycle(ctx context.Context) {
	now := time.Now().UTC()

	for _, ch := range notification.KnownChannels {
		if _, ok := s.processors[ch]; !ok && !s.channelDisabled(ch) {
			continue
		}
		if err := s.drainChannel(ctx, ch, now); err != nil {
			s.logger.ErrorContext(ctx, "dispatch cycle aborted",
				slog.String("channel", string(ch)),
				slog.String("error", err.Error()))
			return
		}
	}

	s.purgeExpired(ctx, now)
}

// drainChannel claims and processes one batch of due deliveries for the
// channel. Per-notification failures are logged and skipped so one bad
// notification cannot stall the rest of the batch.
func (s *Scheduler) drainChannel(ctx context.Context, ch notification.Channel, now time.Time) error {
	due, err := s.storage.FindDue(ctx, ch, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("find due deliveries: %w", err)
	}

	for i := range due {
		if err := s.deliver(ctx, due[i].ID, ch, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to process delivery",
				slog.String("notification_id", due[i].ID),
				slog.String("channel", string(ch)),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Deliver claims and processes a single delivery right now. The facade uses
// it to run synchronous channels at dispatch time instead of waiting for a
// tick. Losing the claim race is not an error.
func (s *Scheduler) Deliver(ctx context.Context, id string, ch notification.Channel) error {
	return s.deliver(ctx, id, ch, time.Now().UTC())
}

func (s *Scheduler) deliver(ctx context.Context, id string, ch notification.Channel, now time.Time) error {
	claimed, err := s.storage.Claim(ctx, id, ch, now)
	if err != nil {
		if errors.Is(err, store.ErrClaimConflict) {
			// Another instance won the race or the delivery settled between
			// the scan and the claim.
			return nil
		}
		return fmt.Errorf("claim delivery: %w", err)
	}

	d := claimed.Delivery(ch)
	if d == nil {
		return fmt.Errorf("claimed notification %s has no %s delivery", id, ch)
	}

	switch {
	case s.channelDisabled(ch):
		d.MarkCancelled(DisabledErrorCode(ch), "channel disabled by operator")
	case !s.allowedByPolicy(ctx, claimed, ch, now):
		d.MarkCancelled(ErrorCodePolicySuppressed, "delivery suppressed by recipient preferences")
	default:
		proc, ok := s.processors[ch]
		if !ok {
			// Leave the delivery in sending; it stays claimable once a
			// processor is registered.
			return fmt.Errorf("%w: %s", ErrProcessorNotFound, ch)
		}
		s.applyResult(claimed, d, proc.Process(ctx, claimed), now)
	}

	if _, err := s.storage.UpdateDelivery(ctx, id, *d); err != nil {
		return fmt.Errorf("persist delivery outcome: %w", err)
	}

	s.logger.DebugContext(ctx, "delivery processed",
		slog.String("notification_id", id),
		slog.String("channel", string(ch)),
		slog.String("status", string(d.Status)),
		slog.Int("attempt", d.AttemptCount))

	return nil
}

// allowedByPolicy evaluates recipient preferences for the claimed delivery.
// Preference lookup failures fail open with the defaults so a preferences
// outage degrades to default behavior instead of blocking delivery.
func (s *Scheduler) allowedByPolicy(ctx context.Context, n *notification.Notification, ch notification.Channel, now time.Time) bool {
	prefs := policy.DefaultPreferences()
	if s.prefs != nil && n.RecipientUserID != "" {
		loaded, err := s.prefs.GetPreferences(ctx, n.RecipientUserID)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load preferences, using defaults",
				slog.String("user_id", n.RecipientUserID),
				slog.String("error", err.Error()))
		} else {
			prefs = loaded
		}
	}
	return s.resolver.ShouldDeliver(prefs, n, ch, now)
}

func (s *Scheduler) applyResult(n *notification.Notification, d *notification.Delivery, res Result, now time.Time) {
	switch res.Outcome {
	case OutcomeDelivered:
		d.MarkDelivered(res.ProviderMessageID)
	case OutcomeCancelled:
		d.MarkCancelled(res.ErrorCode, res.ErrorMessage)
	case OutcomeRetry:
		if d.AttemptCount >= n.MaxRetries(s.defaultMaxRetries) {
			d.MarkFailed(res.ErrorCode, res.ErrorMessage)
			return
		}
		d.Reschedule(now.Add(s.backoff.NextInterval(d.AttemptCount)), res.ErrorCode, res.ErrorMessage)
	}
}

func (s *Scheduler) purgeExpired(ctx context.Context, now time.Time) {
	count, err := s.storage.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to purge expired notifications",
			slog.String("error", err.Error()))
		return
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "purged expired notifications", slog.Int("count", count))
	}
}
