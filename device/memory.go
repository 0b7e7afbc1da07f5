package device

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry implements Registry with a mutex-guarded map, for tests
// and local development.
type MemoryRegistry struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by push token
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{devices: make(map[string]*Device)}
}

func (r *MemoryRegistry) Register(ctx context.Context, userID, token string, provider Provider, platform string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	d, exists := r.devices[token]
	if !exists {
		d = &Device{
			PushToken: token,
			CreatedAt: now,
		}
		r.devices[token] = d
	}

	// A token re-registered by another user moves to that user.
	d.UserID = userID
	d.Provider = provider
	d.Platform = platform
	d.IsActive = true
	d.LastSeenAt = now
	d.UpdatedAt = now
	d.LastErrorAt = nil
	d.LastErrorMessage = ""

	clone := *d
	return &clone, nil
}

func (r *MemoryRegistry) Unregister(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.devices[token]
	if !exists || d.UserID != userID {
		return ErrNotFound
	}
	delete(r.devices, token)
	return nil
}

func (r *MemoryRegistry) ActiveTokens(ctx context.Context, userID string, provider Provider) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tokens []string
	for _, d := range r.devices {
		if d.UserID == userID && d.Provider == provider && d.IsActive {
			tokens = append(tokens, d.PushToken)
		}
	}
	return tokens, nil
}

func (r *MemoryRegistry) Deactivate(ctx context.Context, token, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.devices[token]
	if !exists {
		// Idempotent: nothing to deactivate is not an error.
		return nil
	}
	now := time.Now().UTC()
	d.IsActive = false
	d.LastErrorAt = &now
	d.LastErrorMessage = reason
	d.UpdatedAt = now
	return nil
}
