package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"market-data-service/internal/domain"
	"market-data-service/internal/observability"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 64

// Hub fans observations out to subscribers. Publish never blocks: a
// subscriber whose buffer is full loses the event (counted as a drop).
type Hub struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*Subscription
	buffer  int
	closed  bool
	metrics *observability.Metrics
}

// NewHub creates a hub with the given per-subscriber buffer size.
// A nil metrics is allowed and disables instrumentation.
func NewHub(buffer int, metrics *observability.Metrics) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:    make(map[uuid.UUID]*Subscription),
		buffer:  buffer,
		metrics: metrics,
	}
}

// Compile-time interface check.
var _ Feed = (*Hub)(nil)

// Subscribe registers a new subscriber for the given series.
func (h *Hub) Subscribe(ctx context.Context, dataType domain.DataType) (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, fmt.Errorf("feed closed")
	}

	sub := &Subscription{
		id:       uuid.New(),
		dataType: dataType,
		events:   make(chan domain.Observation, h.buffer),
		done:     make(chan struct{}),
	}
	sub.unregister = func() { h.remove(sub.id) }
	h.subs[sub.id] = sub
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.FeedSubscribers.Inc()
	}

	// Tie the subscription to the caller's context. The watcher also
	// exits on explicit Cancel, so a never-done context (such as
	// context.Background) does not pin a goroutine per subscription.
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish delivers an observation to every matching subscriber.
func (h *Hub) Publish(o domain.Observation) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		if sub.dataType != "" && sub.dataType != o.DataType {
			continue
		}
		select {
		case sub.events <- o:
			if h.metrics != nil {
				h.metrics.FeedEventsDelivered.Inc()
			}
		default:
			if h.metrics != nil {
				h.metrics.FeedEventsDropped.Inc()
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close cancels all subscriptions and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// remove drops a subscription and closes its channel.
func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	close(sub.events)
	if h.metrics != nil {
		h.metrics.FeedSubscribers.Dec()
	}
}
