package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a billing lifecycle notification.
type Kind string

const (
	KindGracePeriodStarted    Kind = "grace_period_started"
	KindPaymentRecovered      Kind = "payment_recovered"
	KindSubscriptionSuspended Kind = "subscription_suspended"
	KindPauseConfirmed        Kind = "pause_confirmed"
	KindResumeConfirmed       Kind = "resume_confirmed"
	KindPlanChanged           Kind = "plan_changed"
)

// Notification is one message to a subscriber about their subscription.
type Notification struct {
	SubscriberID uuid.UUID
	Email        string // optional; required only by email-backed notifiers
	Kind         Kind
	Title        string
	Message      string
	Data         map[string]any
	CreatedAt    time.Time
}

// Notifier sends subscriber notifications. Sends are fire-and-forget from
// the billing core's perspective: callers never fail an operation because a
// notification could not be delivered.
type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}
