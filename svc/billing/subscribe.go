package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/gateway"
	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/subscription"
)

// StartParams describe a new subscriber signing up for a tier.
type StartParams struct {
	SubscriberID uuid.UUID
	Email        string
	Name         string
	Tier         plan.Tier
	Period       plan.BillingPeriod
}

// CancellationLockedError rejects a self-service cancellation blocked by
// perk consumption in the current cycle.
type CancellationLockedError struct {
	Reason string
}

func (e *CancellationLockedError) Error() string {
	return fmt.Sprintf("cancellation is blocked: %s", e.Reason)
}

var (
	ErrMissingSubscriber = errors.New("subscriber id is required")
	ErrMissingEmail      = errors.New("subscriber email is required")
	ErrNotCancellable    = errors.New("subscription is already cancelled")
)

// StartSubscription signs a subscriber up: registers them with the payment
// gateway, starts gateway billing for the tier's price, and creates the
// local active record. If a gateway webhook created the record first, the
// existing record is updated in place so both paths converge on one record
// per subscriber.
func (s *Service) StartSubscription(ctx context.Context, params StartParams) (*subscription.Subscription, error) {
	if params.SubscriberID == uuid.Nil {
		return nil, ErrMissingSubscriber
	}
	if params.Email == "" {
		return nil, ErrMissingEmail
	}
	p, err := s.deps.Catalog.Get(params.Tier)
	if err != nil {
		return nil, err
	}
	if !params.Period.Valid() {
		return nil, plan.ErrInvalidBillingPeriod
	}
	price, err := p.Price(params.Period)
	if err != nil {
		return nil, err
	}

	customer, err := s.deps.Gateway.CreateCustomer(ctx, gateway.CreateCustomerParams{
		Email:        params.Email,
		Name:         params.Name,
		SubscriberID: params.SubscriberID.String(),
	})
	if err != nil {
		return nil, errors.Join(errors.New("failed to register customer with gateway"), err)
	}

	gwSub, err := s.deps.Gateway.CreateSubscription(ctx, gateway.CreateSubscriptionParams{
		CustomerID:   customer.ID,
		PriceID:      p.PriceID(params.Period),
		SubscriberID: params.SubscriberID.String(),
	})
	if err != nil {
		return nil, errors.Join(errors.New("failed to start gateway subscription"), err)
	}

	var result *subscription.Subscription
	err = s.deps.Locker.WithSubscriberLock(ctx, params.SubscriberID, func(ctx context.Context) error {
		sub, err := s.deps.Subs.GetBySubscriberID(ctx, params.SubscriberID)
		switch {
		case errors.Is(err, subscription.ErrSubscriptionNotFound):
			sub = &subscription.Subscription{
				SubscriberID: params.SubscriberID,
				Tier:         params.Tier,
				Status:       subscription.StatusActive,
				CreatedAt:    s.now(),
			}
		case err != nil:
			return err
		}

		sub.Email = params.Email
		sub.Tier = params.Tier
		sub.BillingPeriod = params.Period
		sub.PeriodStart = gwSub.PeriodStart
		sub.PeriodEnd = gwSub.PeriodEnd
		sub.NextAmount = price
		sub.GatewayCustomerID = customer.ID
		sub.GatewaySubscriptionID = gwSub.ID
		sub.PendingTier = nil

		// Signing up again revives a lapsed record: the new gateway
		// subscription restarts billing, so the local status follows. A
		// cancelled record is terminal in the transition table and restarts
		// a fresh lifecycle instead.
		if sub.Status != subscription.StatusActive {
			sub.ClosePauseWindow()
			if subscription.CanTransition(sub.Status, subscription.StatusActive) {
				if err := sub.Transition(subscription.StatusActive); err != nil {
					return err
				}
			} else {
				sub.Status = subscription.StatusActive
			}
		}

		if err := s.deps.Subs.Save(ctx, sub); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "subscription started",
		slog.String("subscriber_id", params.SubscriberID.String()),
		slog.String("tier", string(params.Tier)),
		slog.String("gateway_subscription_id", result.GatewaySubscriptionID),
	)
	return result, nil
}

// CancelSubscription ends the subscription at the subscriber's request.
// Rejected with CancellationLockedError once any perk was consumed this
// cycle. The local record transitions first; stopping gateway billing is
// best-effort and reconciles via the deletion webhook if it fails here.
func (s *Service) CancelSubscription(ctx context.Context, subscriberID uuid.UUID) (*subscription.Subscription, error) {
	var result *subscription.Subscription
	err := s.deps.Locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := s.deps.Subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if sub.Status == subscription.StatusCancelled {
			return ErrNotCancellable
		}
		if !sub.CanCancel() {
			return &CancellationLockedError{Reason: sub.CancellationBlockedReason}
		}

		sub.ClosePauseWindow()
		if err := sub.Transition(subscription.StatusCancelled); err != nil {
			return err
		}
		if err := s.deps.Subs.Save(ctx, sub); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.GatewaySubscriptionID != "" {
		gateway.BestEffort(ctx, s.logger, "cancel subscription", func(ctx context.Context) error {
			return s.deps.Gateway.CancelSubscription(ctx, result.GatewaySubscriptionID)
		})
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "subscription cancelled",
		slog.String("subscriber_id", subscriberID.String()),
	)
	return result, nil
}
