package gateway

import "time"

// EventKind is the normalized asynchronous event type. Each gateway adapter
// maps its provider-specific event names onto these.
type EventKind string

const (
	EventSubscriptionCreated EventKind = "subscription_created"
	EventSubscriptionUpdated EventKind = "subscription_updated"
	EventSubscriptionDeleted EventKind = "subscription_deleted"
	EventPaymentSucceeded    EventKind = "invoice_payment_succeeded"
	EventPaymentFailed       EventKind = "invoice_payment_failed"
	EventUnknown             EventKind = "unknown"
)

// Event is a normalized webhook event from the payment gateway. The
// gateway's subscription id is the natural idempotency key for replays; the
// event id backs the dedup ledger.
type Event struct {
	ID            string    // gateway's event id
	Kind          EventKind // normalized kind
	ProviderEvent string    // original provider event name

	SubscriptionID string // gateway's subscription id
	CustomerID     string // gateway's customer id
	SubscriberID   string // local subscriber id from event metadata, often empty
	Status         string // provider's subscription status
	PriceID        string // price/plan reference

	PeriodStart *time.Time
	PeriodEnd   *time.Time

	OccurredAt time.Time
	Raw        map[string]any
}
