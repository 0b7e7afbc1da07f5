package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(
		WithOutput(&buf),
		WithAttr(slog.String("service", "notifier")),
	)

	log.Info("delivery processed", NotificationID("n-1"), Channel("push"), Attempt(2))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "delivery processed", record["msg"])
	assert.Equal(t, "notifier", record["service"])
	assert.Equal(t, "n-1", record["notification_id"])
	assert.Equal(t, "push", record["channel"])
	assert.Equal(t, float64(2), record["attempt"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(WithOutput(&buf), WithLevel(slog.LevelWarn))

	log.Info("hidden")
	log.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(WithOutput(&buf), WithFormat(FormatText))

	log.Info("hello")
	assert.True(t, strings.Contains(buf.String(), "msg=hello"))
}

func TestWithFormat_PanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() {
		New(WithFormat(Format("xml")))
	})
}

func TestErrorAttr(t *testing.T) {
	assert.Equal(t, slog.Attr{}, Error(nil))

	attr := Error(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
}

func TestWithDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := New(WithOutput(&buf), WithDevelopment("notifier"))

	log.Debug("verbose")
	out := buf.String()
	assert.Contains(t, out, "verbose")
	assert.Contains(t, out, "service=notifier")
}
