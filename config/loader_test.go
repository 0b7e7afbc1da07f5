package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	type dispatchConfig struct {
		Interval  time.Duration `env:"TEST_DISPATCH_INTERVAL" envDefault:"10s"`
		BatchSize int           `env:"TEST_DISPATCH_BATCH_SIZE" envDefault:"30"`
	}

	t.Setenv("TEST_DISPATCH_INTERVAL", "3s")

	var cfg dispatchConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 3*time.Second, cfg.Interval)
	assert.Equal(t, 30, cfg.BatchSize, "default applies when the variable is unset")

	// The first parse wins; later environment changes are not observed.
	t.Setenv("TEST_DISPATCH_INTERVAL", "9s")
	var again dispatchConfig
	require.NoError(t, Load(&again))
	assert.Equal(t, 3*time.Second, again.Interval)
}

func TestLoad_NilPointer(t *testing.T) {
	type emptyConfig struct{}
	var cfg *emptyConfig
	assert.ErrorIs(t, Load(cfg), ErrNilPointer)
}

func TestLoad_RequiredMissing(t *testing.T) {
	type strictConfig struct {
		Token string `env:"TEST_REQUIRED_TOKEN_NEVER_SET,required"`
	}

	var cfg strictConfig
	err := Load(&cfg)
	assert.ErrorIs(t, err, ErrParsingConfig)
}

func TestMustLoad_PanicsOnFailure(t *testing.T) {
	type panicConfig struct {
		Token string `env:"TEST_MUST_LOAD_TOKEN_NEVER_SET,required"`
	}

	assert.Panics(t, func() {
		var cfg panicConfig
		MustLoad(&cfg)
	})
}
