// Package feed delivers newly inserted observations to subscribers.
//
// Two implementations exist: the Hub alone (fed directly by the in-memory
// store) and the Listener (fed by PostgreSQL NOTIFY events from the insert
// trigger). Delivery order relative to concurrent writes is not guaranteed;
// subscribers that fall behind lose events rather than stall the feed.
package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"market-data-service/internal/domain"
)

// Feed hands out subscriptions to the insert stream.
type Feed interface {
	// Subscribe registers interest in inserts for one series, or all
	// series when dataType is empty. The subscription ends when the
	// caller cancels it or ctx is done.
	Subscribe(ctx context.Context, dataType domain.DataType) (*Subscription, error)
}

// Subscription is one subscriber's view of the insert stream.
type Subscription struct {
	id       uuid.UUID
	dataType domain.DataType
	events   chan domain.Observation
	done     chan struct{}

	cancelOnce sync.Once
	unregister func()
}

// Events returns the channel observations are delivered on. The channel
// is closed when the subscription is cancelled.
func (s *Subscription) Events() <-chan domain.Observation {
	return s.events
}

// Cancel ends the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.unregister()
		close(s.done)
	})
}
