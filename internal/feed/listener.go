package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"market-data-service/internal/domain"
	"market-data-service/internal/logger"
	"market-data-service/internal/observability"
	"market-data-service/internal/storage/postgres"
)

// NotifyChannel is the Postgres channel the insert trigger publishes on.
const NotifyChannel = "market_data_inserts"

// ListenerConfig configures reconnect behavior.
type ListenerConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff between attempts.
	MaxReconnectDelay time.Duration
}

// DefaultListenerConfig returns default listener configuration.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}
}

// Listener bridges Postgres NOTIFY events into a Hub. A dedicated pooled
// connection stays parked in LISTEN; on connection loss the listener
// reconnects with capped exponential backoff. Notifications raised while
// disconnected are lost, which matches the at-most-once contract of the feed.
type Listener struct {
	pool    *postgres.Pool
	hub     *Hub
	cfg     ListenerConfig
	log     *logger.Entry
	metrics *observability.Metrics
}

// NewListener creates a listener feeding the given hub.
func NewListener(pool *postgres.Pool, hub *Hub, cfg ListenerConfig, log *logger.Entry, metrics *observability.Metrics) *Listener {
	return &Listener{
		pool:    pool,
		hub:     hub,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
	}
}

// Compile-time interface check.
var _ Feed = (*Listener)(nil)

// Subscribe delegates to the hub.
func (l *Listener) Subscribe(ctx context.Context, dataType domain.DataType) (*Subscription, error) {
	return l.hub.Subscribe(ctx, dataType)
}

// Run listens for insert notifications until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	delay := l.cfg.ReconnectDelay

	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.log.WithError(err).Warn("listen connection lost, reconnecting")
		}
		if l.metrics != nil {
			l.metrics.FeedReconnects.Inc()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > l.cfg.MaxReconnectDelay {
			delay = l.cfg.MaxReconnectDelay
		}
	}
}

// listen holds one connection in LISTEN and dispatches notifications
// until the connection or context fails.
func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	l.log.Debug("listening for market_data inserts")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		o, err := parseNotifyPayload([]byte(notification.Payload))
		if err != nil {
			l.log.WithError(err).Warn("skipping malformed notification payload")
			continue
		}
		l.hub.Publish(*o)
	}
}

// notifyPayload mirrors the JSON built by the insert trigger.
// raw_data is intentionally absent from the payload.
type notifyPayload struct {
	ID       int64           `json:"id"`
	Date     string          `json:"date"`
	DataType domain.DataType `json:"data_type"`
	High     *float64        `json:"high"`
	Low      *float64        `json:"low"`
	Average  float64         `json:"average"`
}

// parseNotifyPayload decodes a trigger payload into an Observation.
func parseNotifyPayload(payload []byte) (*domain.Observation, error) {
	var p notifyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	date, err := time.Parse(time.RFC3339, p.Date)
	if err != nil {
		return nil, fmt.Errorf("parse payload date %q: %w", p.Date, err)
	}

	return &domain.Observation{
		ID:       p.ID,
		Date:     date,
		DataType: p.DataType,
		High:     p.High,
		Low:      p.Low,
		Average:  p.Average,
	}, nil
}
