package gateway

import (
	"context"
	"time"
)

// Gateway defines the external payment processor's observable contract.
// The gateway is the processor of record for charging; local subscription
// state stays authoritative for service availability, so callers treat most
// gateway calls as best-effort and reconcile via webhooks.
//
// Implementations must bound every call with the configured timeout: a slow
// gateway must never hold a request path hostage.
type Gateway interface {
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)
	RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error)

	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// UpdateSubscription swaps the subscription's price item. When Prorate
	// is set the gateway computes and charges the prorated difference
	// immediately.
	UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) error

	CancelSubscription(ctx context.Context, subscriptionID string) error

	// PauseSubscription and ResumeSubscription control payment collection
	// (void billing while paused).
	PauseSubscription(ctx context.Context, subscriptionID string) error
	ResumeSubscription(ctx context.Context, subscriptionID string) error
}

// WebhookParser validates and normalizes asynchronous gateway events.
// Signature verification is mandatory: unsigned or tampered payloads are
// rejected with ErrSignatureInvalid.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}

// Customer is the gateway's view of a paying customer.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// Subscription is the gateway's view of a billing subscription.
type Subscription struct {
	ID          string
	CustomerID  string
	Status      string
	PriceID     string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// CreateCustomerParams identifies the subscriber to the gateway. The
// subscriber id travels in metadata so webhook events can be tied back to a
// local record without guessing.
type CreateCustomerParams struct {
	Email        string
	Name         string
	SubscriberID string
}

// CreateSubscriptionParams starts billing a customer for a price.
type CreateSubscriptionParams struct {
	CustomerID   string
	PriceID      string
	SubscriberID string
}

// UpdateSubscriptionParams swaps a subscription's price item.
type UpdateSubscriptionParams struct {
	SubscriptionID string
	PriceID        string
	Prorate        bool
}
