package push

import "context"

// Message is one outbound push notification addressed to a single device
// token.
type Message struct {
	To       string         `json:"to"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Priority string         `json:"priority,omitempty"`
	Sound    string         `json:"sound,omitempty"`
}

// Result is the per-message outcome of a batch call, parallel to the input
// slice.
type Result struct {
	OK bool

	// ProviderMessageID is the provider-side tracking id, set on success.
	ProviderMessageID string

	// ErrorCode is the provider's machine-readable error code, e.g.
	// "DeviceNotRegistered".
	ErrorCode string

	// ErrorMessage is the provider's human-readable error description.
	ErrorMessage string
}

// PermanentTokenFailure reports whether the result means the target token
// is permanently dead and should be deactivated.
func (r Result) PermanentTokenFailure() bool {
	return r.ErrorCode == ErrorCodeDeviceNotRegistered
}

// ErrorCodeDeviceNotRegistered is the provider code for a token that will
// never receive pushes again.
const ErrorCodeDeviceNotRegistered = "DeviceNotRegistered"

// Client is the provider gateway. Implementations must return exactly one
// Result per input message, in input order, even when the whole call fails.
type Client interface {
	SendBatch(ctx context.Context, messages []Message) ([]Result, error)
}
