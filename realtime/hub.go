package realtime

import (
	"context"
	"sync"
)

// Hub is an in-process Publisher that fans events out to per-user
// subscribers. Sends are non-blocking: when a subscriber's buffer is full
// the event is dropped for that subscriber, so a slow consumer never stalls
// the dispatch cycle.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*HubSubscriber]struct{}
	bufferSize  int
	closed      bool
}

// HubSubscriber receives the live events of one user.
type HubSubscriber struct {
	hub       *Hub
	userID    string
	ch        chan Event
	closeOnce sync.Once
}

// Receive returns the subscriber's event channel. The channel is closed
// when the subscriber or the hub is closed.
func (s *HubSubscriber) Receive() <-chan Event {
	return s.ch
}

// Close removes the subscriber from the hub and closes its channel. Safe
// to call multiple times.
func (s *HubSubscriber) Close() {
	s.hub.unsubscribe(s)
}

// NewHub creates a hub with the given per-subscriber buffer size. A
// minimum of 1 is enforced to keep sends non-blocking.
func NewHub(bufferSize int) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*HubSubscriber]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Subscribe attaches a live listener for the user's events. The
// subscription is cleaned up when the context is cancelled.
func (h *Hub) Subscribe(ctx context.Context, userID string) *HubSubscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &HubSubscriber{
		hub:    h,
		userID: userID,
		ch:     make(chan Event, h.bufferSize),
	}
	if h.closed {
		sub.closeOnce.Do(func() { close(sub.ch) })
		return sub
	}

	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[*HubSubscriber]struct{})
	}
	h.subscribers[userID][sub] = struct{}{}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			h.unsubscribe(sub)
		}()
	}

	return sub
}

// Publish implements Publisher. The event name is carried by the transport
// layer; the hub delivers the payload to every subscriber of the user.
func (h *Hub) Publish(ctx context.Context, userID, eventName string, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}

	for sub := range h.subscribers[userID] {
		select {
		case sub.ch <- event:
		default:
			// Buffer full: drop for this subscriber.
		}
	}
	return nil
}

// Close shuts down the hub and closes all subscribers.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for _, subs := range h.subscribers {
		for sub := range subs {
			sub.closeOnce.Do(func() { close(sub.ch) })
		}
	}
	clear(h.subscribers)
	return nil
}

func (h *Hub) unsubscribe(sub *HubSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subscribers[sub.userID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscribers, sub.userID)
		}
	}
	sub.closeOnce.Do(func() { close(sub.ch) })
}
