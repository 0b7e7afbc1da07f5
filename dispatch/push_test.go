package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/device"
	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/push"
)

type fakeRegistry struct {
	tokens      []string
	tokensErr   error
	deactivated map[string]string
}

func (f *fakeRegistry) Register(ctx context.Context, userID, token string, provider device.Provider, platform string) (*device.Device, error) {
	return nil, nil
}

func (f *fakeRegistry) Unregister(ctx context.Context, userID, token string) error { return nil }

func (f *fakeRegistry) ActiveTokens(ctx context.Context, userID string, provider device.Provider) ([]string, error) {
	return f.tokens, f.tokensErr
}

func (f *fakeRegistry) Deactivate(ctx context.Context, token, reason string) error {
	if f.deactivated == nil {
		f.deactivated = make(map[string]string)
	}
	f.deactivated[token] = reason
	return nil
}

type fakeClient struct {
	results []push.Result
	err     error
	sent    []push.Message
}

func (f *fakeClient) SendBatch(ctx context.Context, messages []push.Message) ([]push.Result, error) {
	f.sent = messages
	return f.results, f.err
}

func pushTestNotification(priority notification.Priority) *notification.Notification {
	return &notification.Notification{
		ID:              "n-1",
		RecipientUserID: "user-1",
		EventKey:        "test.event",
		Priority:        priority,
		Title:           "Title",
		Body:            "Body",
		Data:            map[string]any{"order_id": "42"},
	}
}

func TestPushProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("no active devices retries", func(t *testing.T) {
		p := NewPushProcessor(&fakeRegistry{}, &fakeClient{})
		res := p.Process(ctx, pushTestNotification(notification.PriorityNormal))

		assert.Equal(t, OutcomeRetry, res.Outcome)
		assert.Equal(t, ErrorCodeNoActiveDevice, res.ErrorCode)
	})

	t.Run("registry failure retries", func(t *testing.T) {
		p := NewPushProcessor(&fakeRegistry{tokensErr: errors.New("db down")}, &fakeClient{})
		res := p.Process(ctx, pushTestNotification(notification.PriorityNormal))

		assert.Equal(t, OutcomeRetry, res.Outcome)
		assert.Equal(t, ErrorCodeDeviceLookupFailed, res.ErrorCode)
	})

	t.Run("single token success", func(t *testing.T) {
		client := &fakeClient{results: []push.Result{{OK: true, ProviderMessageID: "ticket-1"}}}
		p := NewPushProcessor(&fakeRegistry{tokens: []string{"tok-1"}}, client)

		res := p.Process(ctx, pushTestNotification(notification.PriorityCritical))

		assert.Equal(t, OutcomeDelivered, res.Outcome)
		assert.Equal(t, "ticket-1", res.ProviderMessageID)

		require.Len(t, client.sent, 1)
		msg := client.sent[0]
		assert.Equal(t, "tok-1", msg.To)
		assert.Equal(t, "high", msg.Priority, "critical maps to high provider priority")
		assert.Equal(t, "n-1", msg.Data["notification_id"])
		assert.Equal(t, "test.event", msg.Data["event_key"])
		assert.Equal(t, "42", msg.Data["order_id"])
	})

	t.Run("normal priority maps to default", func(t *testing.T) {
		client := &fakeClient{results: []push.Result{{OK: true}}}
		p := NewPushProcessor(&fakeRegistry{tokens: []string{"tok-1"}}, client)

		p.Process(ctx, pushTestNotification(notification.PriorityNormal))

		require.Len(t, client.sent, 1)
		assert.Equal(t, "default", client.sent[0].Priority)
	})

	t.Run("batch failure retries", func(t *testing.T) {
		client := &fakeClient{err: errors.New("connection refused")}
		p := NewPushProcessor(&fakeRegistry{tokens: []string{"tok-1"}}, client)

		res := p.Process(ctx, pushTestNotification(notification.PriorityNormal))

		assert.Equal(t, OutcomeRetry, res.Outcome)
		assert.Equal(t, "provider_unreachable", res.ErrorCode)
	})

	t.Run("dead token deactivated, second token delivers", func(t *testing.T) {
		registry := &fakeRegistry{tokens: []string{"tok-dead", "tok-ok"}}
		client := &fakeClient{results: []push.Result{
			{OK: false, ErrorCode: push.ErrorCodeDeviceNotRegistered, ErrorMessage: "gone"},
			{OK: true, ProviderMessageID: "ticket-2"},
		}}
		p := NewPushProcessor(registry, client)

		res := p.Process(ctx, pushTestNotification(notification.PriorityNormal))

		assert.Equal(t, OutcomeDelivered, res.Outcome)
		assert.Equal(t, "ticket-2", res.ProviderMessageID)
		assert.Equal(t, push.ErrorCodeDeviceNotRegistered, registry.deactivated["tok-dead"])
		assert.NotContains(t, registry.deactivated, "tok-ok")
	})

	t.Run("all tokens fail retries with first error", func(t *testing.T) {
		registry := &fakeRegistry{tokens: []string{"tok-1", "tok-2"}}
		client := &fakeClient{results: []push.Result{
			{OK: false, ErrorCode: "MessageRateExceeded", ErrorMessage: "slow down"},
			{OK: false, ErrorCode: push.ErrorCodeDeviceNotRegistered, ErrorMessage: "gone"},
		}}
		p := NewPushProcessor(registry, client)

		res := p.Process(ctx, pushTestNotification(notification.PriorityNormal))

		assert.Equal(t, OutcomeRetry, res.Outcome)
		assert.Equal(t, "MessageRateExceeded", res.ErrorCode)
		assert.Contains(t, registry.deactivated, "tok-2")
	})
}

func TestStubProcessor(t *testing.T) {
	p := NewStubProcessor(notification.ChannelEmail)
	assert.Equal(t, notification.ChannelEmail, p.Channel())

	res := p.Process(context.Background(), pushTestNotification(notification.PriorityNormal))
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, ErrorCodeChannelUnsupported, res.ErrorCode)
}
