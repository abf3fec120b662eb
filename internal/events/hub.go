// Package events fans moderation events out to in-process subscribers (SSE
// clients) and, optionally, to a Redis channel shared by other instances.
package events

import (
	"context"
	"sync"
	"time"
)

// Event kinds.
const (
	KindSubmitted = "request.submitted"
	KindEdited    = "request.edited"
	KindDecided   = "request.decided"
)

// Event describes one change to an organization request.
type Event struct {
	Kind      string    `json:"kind"`
	RequestID string    `json:"request_id"`
	OrgType   string    `json:"organization_type,omitempty"`
	From      string    `json:"from,omitempty"`
	Status    string    `json:"status"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Hub fans events out to all active subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

var _ Publisher = (*Hub)(nil)

// NewHub initialises an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers evt to every subscriber that has room. It never blocks.
func (h *Hub) Publish(_ context.Context, evt Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// slow subscriber
		}
	}
	return nil
}
