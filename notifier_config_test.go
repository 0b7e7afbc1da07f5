package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("NOTIFIER_DISPATCH_INTERVAL", "5s")
	t.Setenv("NOTIFIER_DISABLED_CHANNELS", "push,sms")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.DispatchInterval)
	assert.Equal(t, 30, cfg.DispatchBatchSize, "untouched fields keep their defaults")
	assert.Equal(t, []string{"push", "sms"}, cfg.DisabledChannels)

	opts := cfg.SchedulerOptions()
	assert.Len(t, opts, 5)
}
