package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines subscription persistence. Lookups must work by subscriber
// identity and by the external gateway's subscription id, since the webhook
// reconciler and the request paths key differently.
type Store interface {
	// GetBySubscriberID retrieves the subscriber's single subscription.
	// Returns ErrSubscriptionNotFound if none exists.
	GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) (*Subscription, error)

	// GetByGatewaySubscriptionID retrieves a subscription by the gateway's
	// subscription reference. Returns ErrSubscriptionNotFound if none exists.
	GetByGatewaySubscriptionID(ctx context.Context, gatewaySubID string) (*Subscription, error)

	// GetByGatewayCustomerID retrieves a subscription by the gateway's
	// customer reference. Returns ErrSubscriptionNotFound if none exists.
	GetByGatewayCustomerID(ctx context.Context, gatewayCustomerID string) (*Subscription, error)

	// Save creates or updates a subscription. SubscriberID is the identity
	// key; saving a second subscription for the same subscriber returns
	// ErrSubscriptionExists. Implementations must reject records that fail
	// Validate.
	Save(ctx context.Context, sub *Subscription) error

	// ListGraceExpired returns past-due paused subscriptions whose pause
	// window elapsed before now: the grace-period expiration candidates.
	ListGraceExpired(ctx context.Context, now time.Time) ([]*Subscription, error)

	// ListAutoResumable returns paused subscriptions whose pause window
	// elapsed before now, excluding past-due ones so the grace-period sweep
	// and the auto-resume sweep never process the same record.
	ListAutoResumable(ctx context.Context, now time.Time) ([]*Subscription, error)

	// ListRenewalsDue returns subscriptions whose billing period ended
	// before now and that are still renewable (active or pending a change).
	ListRenewalsDue(ctx context.Context, now time.Time) ([]*Subscription, error)
}

// PauseStore persists pause episodes as append-only history.
type PauseStore interface {
	// GetActive returns the subscription's single active pause record.
	// Returns ErrPauseRecordNotFound if no pause is open.
	GetActive(ctx context.Context, subscriptionID uuid.UUID) (*PauseRecord, error)

	// Save creates or updates a pause record. Creating a second active
	// record for the same subscription returns ErrActivePauseExists.
	Save(ctx context.Context, rec *PauseRecord) error

	// ListBySubscription returns the full pause history, newest first.
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*PauseRecord, error)
}

// PerkUsageStore persists the current-cycle perk consumption record.
type PerkUsageStore interface {
	// GetBySubscriberID returns the subscriber's current-cycle record.
	// Returns ErrPerkUsageNotFound if no perk has been used this cycle.
	GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) (*PerkUsage, error)

	// Save creates or replaces the subscriber's current-cycle record.
	Save(ctx context.Context, usage *PerkUsage) error
}

// Locker serializes mutations per subscriber. A plan change and a concurrent
// webhook update for the same subscriber must not interleave; implementations
// provide row-level locks (Postgres) or keyed mutexes (in-memory). Operations
// on different subscribers proceed in parallel.
type Locker interface {
	WithSubscriberLock(ctx context.Context, subscriberID uuid.UUID, fn func(ctx context.Context) error) error
}
