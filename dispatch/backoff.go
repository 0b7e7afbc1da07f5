package dispatch

import "time"

// BackoffStrategy calculates the delay before a failed delivery is retried.
// Implementations must be safe for concurrent use.
type BackoffStrategy interface {
	// NextInterval returns the delay after the given attempt number.
	// Attempt starts at 1 for the first failed attempt.
	NextInterval(attempt int) time.Duration
}

// LadderBackoff implements a fixed multiplier ladder over a base interval.
// The ladder is deterministic on purpose: retry times for a stuck delivery
// can be read straight off its attempt count.
type LadderBackoff struct {
	Base        time.Duration
	Multipliers []int
	Max         time.Duration
}

// NextInterval returns Base times the ladder multiplier for the attempt,
// capped at Max. Attempts past the end of the ladder stay at the cap.
func (l LadderBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := l.Base
	if base == 0 {
		base = 30 * time.Second
	}

	max := l.Max
	if max == 0 {
		max = 30 * time.Minute
	}

	multipliers := l.Multipliers
	if len(multipliers) == 0 {
		multipliers = defaultBackoffMultipliers
	}

	if attempt > len(multipliers) {
		return max
	}

	delay := base * time.Duration(multipliers[attempt-1])
	if delay > max {
		delay = max
	}
	return delay
}

var defaultBackoffMultipliers = []int{1, 4, 20, 60}

// DefaultBackoffStrategy returns the standard retry ladder:
// 30s, 2m, 10m, 30m, then 30m for every attempt after that.
func DefaultBackoffStrategy() BackoffStrategy {
	return LadderBackoff{
		Base:        30 * time.Second,
		Multipliers: defaultBackoffMultipliers,
		Max:         30 * time.Minute,
	}
}
