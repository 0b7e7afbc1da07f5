package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLadderBackoff_NextInterval(t *testing.T) {
	backoff := DefaultBackoffStrategy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 0},
		{attempt: -1, want: 0},
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: 2 * time.Minute},
		{attempt: 3, want: 10 * time.Minute},
		{attempt: 4, want: 30 * time.Minute},
		{attempt: 5, want: 30 * time.Minute},
		{attempt: 100, want: 30 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff.NextInterval(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestLadderBackoff_Cap(t *testing.T) {
	backoff := LadderBackoff{
		Base:        time.Minute,
		Multipliers: []int{1, 100},
		Max:         5 * time.Minute,
	}

	assert.Equal(t, time.Minute, backoff.NextInterval(1))
	assert.Equal(t, 5*time.Minute, backoff.NextInterval(2), "ladder step above the cap is clamped")
	assert.Equal(t, 5*time.Minute, backoff.NextInterval(3), "past the ladder stays at the cap")
}

func TestLadderBackoff_ZeroValueDefaults(t *testing.T) {
	var backoff LadderBackoff

	assert.Equal(t, 30*time.Second, backoff.NextInterval(1))
	assert.Equal(t, 30*time.Minute, backoff.NextInterval(4))
}
