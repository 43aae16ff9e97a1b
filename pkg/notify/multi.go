package notify

import (
	"context"
	"log/slog"
)

// Multi fans a notification out to several channels. Delivery is best
// effort per channel: a failing channel is logged and skipped so one broken
// integration never blocks the rest.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// MultiOption configures a Multi notifier.
type MultiOption func(*Multi)

// WithMultiLogger sets the logger for per-channel delivery failures.
func WithMultiLogger(logger *slog.Logger) MultiOption {
	return func(m *Multi) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMulti creates a multi-channel notifier.
func NewMulti(notifiers []Notifier, opts ...MultiOption) *Multi {
	m := &Multi{
		notifiers: notifiers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Multi) Send(ctx context.Context, notification Notification) error {
	for i, n := range m.notifiers {
		if err := n.Send(ctx, notification); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to send notification",
				slog.String("kind", string(notification.Kind)),
				slog.String("subscriber_id", notification.SubscriberID.String()),
				slog.Int("notifier_index", i),
				slog.String("error", err.Error()),
			)
			continue
		}
	}
	return nil
}
