package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultEventTTL = 72 * time.Hour

// EventLedger remembers processed webhook event ids so redeliveries of an
// already-handled event can return early. Entries expire after a TTL: the
// gateway stops redelivering long before that, and an unbounded set would
// only grow.
type EventLedger struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// LedgerOption configures an EventLedger.
type LedgerOption func(*EventLedger)

// WithEventTTL overrides how long processed event ids are remembered.
func WithEventTTL(ttl time.Duration) LedgerOption {
	return func(l *EventLedger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithKeyPrefix overrides the key namespace, e.g. to share one Redis between
// environments.
func WithKeyPrefix(prefix string) LedgerOption {
	return func(l *EventLedger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// NewEventLedger creates a processed-event ledger on the given client.
// Panics on a nil client to fail fast during initialization.
func NewEventLedger(client redis.UniversalClient, opts ...LedgerOption) *EventLedger {
	if client == nil {
		panic("redis: client is required")
	}
	l := &EventLedger{
		client: client,
		prefix: "billing:webhook:event:",
		ttl:    defaultEventTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MarkProcessed records the event id and reports whether this delivery is the
// first one. SETNX makes the check-and-record atomic, so two concurrent
// deliveries of the same event cannot both win.
func (l *EventLedger) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+eventID, 1, l.ttl).Result()
}

// Forget removes an event id so a delivery whose processing failed can be
// retried by the gateway without being treated as a replay.
func (l *EventLedger) Forget(ctx context.Context, eventID string) error {
	return l.client.Del(ctx, l.prefix+eventID).Err()
}
