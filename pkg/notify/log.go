package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log. Used in
// development and as a last-resort channel in production so lifecycle events
// always leave a trace.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier. A nil logger falls back to
// slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, notification Notification) error {
	n.logger.LogAttrs(ctx, slog.LevelInfo, "subscriber notification",
		slog.String("kind", string(notification.Kind)),
		slog.String("subscriber_id", notification.SubscriberID.String()),
		slog.String("title", notification.Title),
		slog.String("message", notification.Message),
	)
	return nil
}
