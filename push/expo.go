package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// expoChunkSize is the provider-mandated maximum number of messages per
// call.
const expoChunkSize = 100

// ExpoConfig represents the configuration for the Expo push gateway.
type ExpoConfig struct {
	URL            string        `env:"EXPO_PUSH_URL" envDefault:"https://exp.host/--/api/v2/push/send"`
	AccessToken    string        `env:"EXPO_ACCESS_TOKEN"`
	RequestTimeout time.Duration `env:"EXPO_REQUEST_TIMEOUT" envDefault:"5s"`
}

// ExpoClient is a stateless HTTP wrapper around the Expo push gateway.
type ExpoClient struct {
	url         string
	accessToken string
	httpClient  *http.Client
}

// ExpoOption configures an ExpoClient.
type ExpoOption func(*ExpoClient)

// WithHTTPClient sets a custom HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) ExpoOption {
	return func(e *ExpoClient) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// NewExpoClient creates a client for the Expo push gateway. The request
// timeout bounds every provider call so a hanging gateway surfaces as a
// retryable send failure instead of stalling the dispatch cycle.
func NewExpoClient(cfg ExpoConfig, opts ...ExpoOption) *ExpoClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := &ExpoClient{
		url:         cfg.URL,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// expoTicket is one entry of the provider's response data array, parallel
// to the request messages.
type expoTicket struct {
	Status  string `json:"status"` // "ok" or "error"
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// SendBatch sends the messages in provider-sized chunks and returns one
// Result per message in input order. A failed chunk yields failure results
// for its messages only; other chunks are unaffected.
func (c *ExpoClient) SendBatch(ctx context.Context, messages []Message) ([]Result, error) {
	results := make([]Result, 0, len(messages))

	for start := 0; start < len(messages); start += expoChunkSize {
		end := min(start+expoChunkSize, len(messages))
		chunk := messages[start:end]

		chunkResults, err := c.sendChunk(ctx, chunk)
		if err != nil {
			// Network-level failure: every message in the chunk failed.
			for range chunk {
				results = append(results, Result{
					ErrorCode:    "provider_unreachable",
					ErrorMessage: err.Error(),
				})
			}
			continue
		}
		results = append(results, chunkResults...)
	}

	return results, nil
}

func (c *ExpoClient) sendChunk(ctx context.Context, chunk []Message) ([]Result, error) {
	body, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("marshal push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}

	var parsed expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}
	if len(parsed.Data) != len(chunk) {
		return nil, errors.New("push gateway returned mismatched ticket count")
	}

	results := make([]Result, len(parsed.Data))
	for i, ticket := range parsed.Data {
		if ticket.Status == "ok" {
			results[i] = Result{OK: true, ProviderMessageID: ticket.ID}
			continue
		}
		results[i] = Result{
			ErrorCode:    ticket.Details.Error,
			ErrorMessage: ticket.Message,
		}
	}
	return results, nil
}
