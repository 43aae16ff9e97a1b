package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/gateway"
	"github.com/dwellcare/billing/pkg/subscription"
)

// ResolutionMethod names how an event was tied to a local subscriber.
type ResolutionMethod string

const (
	ResolvedByMetadata    ResolutionMethod = "metadata"
	ResolvedByCustomerRef ResolutionMethod = "customer_ref"
	ResolvedByEmail       ResolutionMethod = "email"
	Unresolved            ResolutionMethod = "unresolved"
)

// Resolution is the outcome of the ownership-resolution chain for a
// subscription-created event. Email is set when the chain had to go
// through the gateway customer, so a gateway-first record keeps a
// deliverable notification address.
type Resolution struct {
	Method       ResolutionMethod
	SubscriberID uuid.UUID
	Email        string
}

// SubscriberDirectory looks up local subscribers by email, the last rung of
// the ownership-resolution chain. Backed by the platform's account service.
type SubscriberDirectory interface {
	// FindByEmail returns the subscriber with the given email, or
	// ErrSubscriberNotFound.
	FindByEmail(ctx context.Context, email string) (uuid.UUID, error)
}

// resolveOwnership ties a subscription-created event to a local subscriber.
// The chain prefers the explicit subscriber id the billing core plants in
// gateway metadata, then an existing record sharing the gateway customer,
// then an email match against the subscriber directory. Exhausting the chain
// returns ErrUnresolvedEvent.
func (r *Reconciler) resolveOwnership(ctx context.Context, ev *gateway.Event) (Resolution, error) {
	if ev.SubscriberID != "" {
		id, err := uuid.Parse(ev.SubscriberID)
		if err != nil {
			return Resolution{Method: Unresolved}, fmt.Errorf("%w: bad subscriber id in metadata: %q", ErrUnresolvedEvent, ev.SubscriberID)
		}
		return Resolution{Method: ResolvedByMetadata, SubscriberID: id}, nil
	}

	if ev.CustomerID != "" {
		sub, err := r.subs.GetByGatewayCustomerID(ctx, ev.CustomerID)
		switch {
		case err == nil:
			return Resolution{Method: ResolvedByCustomerRef, SubscriberID: sub.SubscriberID}, nil
		case !errors.Is(err, subscription.ErrSubscriptionNotFound):
			return Resolution{Method: Unresolved}, err
		}

		customer, err := r.gw.RetrieveCustomer(ctx, ev.CustomerID)
		if err != nil {
			return Resolution{Method: Unresolved}, fmt.Errorf("retrieve gateway customer %s: %w", ev.CustomerID, err)
		}
		if customer.Email != "" {
			id, err := r.directory.FindByEmail(ctx, customer.Email)
			switch {
			case err == nil:
				return Resolution{Method: ResolvedByEmail, SubscriberID: id, Email: customer.Email}, nil
			case !errors.Is(err, ErrSubscriberNotFound):
				return Resolution{Method: Unresolved}, err
			}
		}
	}

	return Resolution{Method: Unresolved}, fmt.Errorf("%w: event %s has no resolvable owner", ErrUnresolvedEvent, ev.ID)
}
