package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/gateway"
	"github.com/dwellcare/billing/pkg/pause"
	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/subscription"
)

// Outcome summarizes what processing one event did.
type Outcome string

const (
	// OutcomeApplied means the event changed (or idempotently confirmed)
	// local state.
	OutcomeApplied Outcome = "applied"
	// OutcomeReplay means the event id was already in the dedup ledger.
	OutcomeReplay Outcome = "replay"
	// OutcomeUnresolved means ownership could not be established; the event
	// was logged as an alarm and dropped.
	OutcomeUnresolved Outcome = "unresolved"
	// OutcomeIgnored means the event does not concern a known subscription
	// or is of a kind the reconciler does not handle.
	OutcomeIgnored Outcome = "ignored"
)

// Result describes the processing of one gateway event.
type Result struct {
	Outcome      Outcome
	Resolution   Resolution
	SubscriberID uuid.UUID
}

// PauseManager is the slice of the pause manager the reconciler drives on
// payment events.
type PauseManager interface {
	PauseForPaymentFailure(ctx context.Context, subscriberID uuid.UUID) (*pause.Result, error)
	HandlePaymentRecovered(ctx context.Context, subscriberID uuid.UUID) (*pause.RecoveryResult, error)
}

// EventDeduper is the processed-event ledger. MarkProcessed reports whether
// this delivery is the first; Forget reopens an event whose processing
// failed so the gateway's retry is not mistaken for a replay.
type EventDeduper interface {
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Reconciler applies the payment gateway's asynchronous event stream to
// local subscription state. Local records stay authoritative for service
// availability, but the gateway is authoritative for what was actually
// charged, so events refresh status, period boundaries and pricing.
//
// Every handler is idempotent: lookups key on the gateway's subscription id,
// writes are upserts, and an optional dedup ledger short-circuits replays
// before any state is touched.
type Reconciler struct {
	subs      subscription.Store
	locker    subscription.Locker
	gw        gateway.Gateway
	catalog   *plan.Catalog
	pauses    PauseManager
	directory SubscriberDirectory
	dedup     EventDeduper
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEventDeduper enables replay suppression through a processed-event
// ledger. Without one, idempotent handlers alone absorb replays.
func WithEventDeduper(dedup EventDeduper) Option {
	return func(r *Reconciler) {
		r.dedup = dedup
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates the webhook reconciler. Panics on nil dependencies to fail
// fast during initialization.
func New(subs subscription.Store, locker subscription.Locker, gw gateway.Gateway, catalog *plan.Catalog, pauses PauseManager, directory SubscriberDirectory, opts ...Option) *Reconciler {
	if subs == nil {
		panic("reconciler: subscription store is required")
	}
	if locker == nil {
		panic("reconciler: locker is required")
	}
	if gw == nil {
		panic("reconciler: payment gateway is required")
	}
	if catalog == nil {
		panic("reconciler: plan catalog is required")
	}
	if pauses == nil {
		panic("reconciler: pause manager is required")
	}
	if directory == nil {
		panic("reconciler: subscriber directory is required")
	}

	r := &Reconciler{
		subs:      subs,
		locker:    locker,
		gw:        gw,
		catalog:   catalog,
		pauses:    pauses,
		directory: directory,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process applies one gateway event. A non-nil error means the delivery
// layer should signal retry; unresolved ownership and unknown event kinds
// are terminal, logged, and return a result instead of an error.
func (r *Reconciler) Process(ctx context.Context, ev *gateway.Event) (*Result, error) {
	if r.dedup != nil && ev.ID != "" {
		first, err := r.dedup.MarkProcessed(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		if !first {
			r.logger.LogAttrs(ctx, slog.LevelInfo, "webhook replay suppressed",
				slog.String("event_id", ev.ID),
				slog.String("kind", string(ev.Kind)),
			)
			return &Result{Outcome: OutcomeReplay}, nil
		}
	}

	result, err := r.dispatch(ctx, ev)
	if err != nil {
		// Reopen the ledger entry: the gateway's redelivery must get a real
		// retry, not a replay short-circuit.
		if r.dedup != nil && ev.ID != "" {
			if ferr := r.dedup.Forget(ctx, ev.ID); ferr != nil {
				r.logger.LogAttrs(ctx, slog.LevelError, "failed to reopen event for retry",
					slog.String("event_id", ev.ID),
					slog.String("error", ferr.Error()),
				)
			}
		}
		return nil, err
	}
	return result, nil
}

func (r *Reconciler) dispatch(ctx context.Context, ev *gateway.Event) (*Result, error) {
	switch ev.Kind {
	case gateway.EventSubscriptionCreated:
		return r.handleCreated(ctx, ev)
	case gateway.EventSubscriptionUpdated:
		return r.handleUpdated(ctx, ev)
	case gateway.EventSubscriptionDeleted:
		return r.handleDeleted(ctx, ev)
	case gateway.EventPaymentSucceeded:
		return r.handlePaymentSucceeded(ctx, ev)
	case gateway.EventPaymentFailed:
		return r.handlePaymentFailed(ctx, ev)
	default:
		r.logger.LogAttrs(ctx, slog.LevelDebug, "ignoring webhook event kind",
			slog.String("event_id", ev.ID),
			slog.String("provider_event", ev.ProviderEvent),
		)
		return &Result{Outcome: OutcomeIgnored}, nil
	}
}

func (r *Reconciler) handleCreated(ctx context.Context, ev *gateway.Event) (*Result, error) {
	// A record already carrying this gateway subscription makes the event a
	// replay of a creation we have seen: refresh and finish.
	existing, err := r.subs.GetByGatewaySubscriptionID(ctx, ev.SubscriptionID)
	switch {
	case err == nil:
		if err := r.refresh(ctx, existing.SubscriberID, ev); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeApplied, SubscriberID: existing.SubscriberID}, nil
	case !errors.Is(err, subscription.ErrSubscriptionNotFound):
		return nil, err
	}

	resolution, err := r.resolveOwnership(ctx, ev)
	if err != nil {
		if errors.Is(err, ErrUnresolvedEvent) {
			r.logger.LogAttrs(ctx, slog.LevelError, "unresolved webhook event dropped",
				slog.String("event_id", ev.ID),
				slog.String("gateway_subscription_id", ev.SubscriptionID),
				slog.String("gateway_customer_id", ev.CustomerID),
				slog.String("error", err.Error()),
			)
			return &Result{Outcome: OutcomeUnresolved, Resolution: resolution}, nil
		}
		return nil, err
	}

	err = r.locker.WithSubscriberLock(ctx, resolution.SubscriberID, func(ctx context.Context) error {
		sub, err := r.subs.GetBySubscriberID(ctx, resolution.SubscriberID)
		switch {
		case err == nil:
			// Local-first path: the record exists, the event contributes the
			// gateway references.
		case errors.Is(err, subscription.ErrSubscriptionNotFound):
			// Gateway-first path: the event creates the record.
			sub = &subscription.Subscription{
				SubscriberID: resolution.SubscriberID,
				Status:       subscription.StatusActive,
			}
		default:
			return err
		}
		if sub.Email == "" && resolution.Email != "" {
			sub.Email = resolution.Email
		}
		r.applyEvent(ctx, sub, ev)
		return r.subs.Save(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "subscription reconciled from creation event",
		slog.String("event_id", ev.ID),
		slog.String("subscriber_id", resolution.SubscriberID.String()),
		slog.String("resolved_by", string(resolution.Method)),
	)
	return &Result{Outcome: OutcomeApplied, Resolution: resolution, SubscriberID: resolution.SubscriberID}, nil
}

func (r *Reconciler) handleUpdated(ctx context.Context, ev *gateway.Event) (*Result, error) {
	sub, err := r.subs.GetByGatewaySubscriptionID(ctx, ev.SubscriptionID)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		// The gateway occasionally delivers update before create; treating
		// the update as a creation keeps the record converging either way.
		return r.handleCreated(ctx, ev)
	case err != nil:
		return nil, err
	}

	if err := r.refresh(ctx, sub.SubscriberID, ev); err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeApplied, SubscriberID: sub.SubscriberID}, nil
}

func (r *Reconciler) handleDeleted(ctx context.Context, ev *gateway.Event) (*Result, error) {
	sub, err := r.subs.GetByGatewaySubscriptionID(ctx, ev.SubscriptionID)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		r.logger.LogAttrs(ctx, slog.LevelWarn, "deletion event for unknown subscription",
			slog.String("event_id", ev.ID),
			slog.String("gateway_subscription_id", ev.SubscriptionID),
		)
		return &Result{Outcome: OutcomeIgnored}, nil
	case err != nil:
		return nil, err
	}

	err = r.locker.WithSubscriberLock(ctx, sub.SubscriberID, func(ctx context.Context) error {
		current, err := r.subs.GetBySubscriberID(ctx, sub.SubscriberID)
		if err != nil {
			return err
		}
		if current.Status == subscription.StatusCancelled {
			return nil
		}
		// A cancelled subscription may not stay paused.
		current.ClosePauseWindow()
		if err := current.Transition(subscription.StatusCancelled); err != nil {
			return err
		}
		current.UpdatedAt = r.now()
		return r.subs.Save(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "subscription cancelled from gateway event",
		slog.String("event_id", ev.ID),
		slog.String("subscriber_id", sub.SubscriberID.String()),
	)
	return &Result{Outcome: OutcomeApplied, SubscriberID: sub.SubscriberID}, nil
}

func (r *Reconciler) handlePaymentSucceeded(ctx context.Context, ev *gateway.Event) (*Result, error) {
	sub, err := r.subs.GetByGatewaySubscriptionID(ctx, ev.SubscriptionID)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		r.logger.LogAttrs(ctx, slog.LevelWarn, "payment event for unknown subscription",
			slog.String("event_id", ev.ID),
			slog.String("gateway_subscription_id", ev.SubscriptionID),
		)
		return &Result{Outcome: OutcomeIgnored}, nil
	case err != nil:
		return nil, err
	}

	// The recovery path takes its own subscriber lock and no-ops unless the
	// pause is a payment-failure one.
	if sub.IsPaused {
		if _, err := r.pauses.HandlePaymentRecovered(ctx, sub.SubscriberID); err != nil {
			return nil, err
		}
	}

	err = r.locker.WithSubscriberLock(ctx, sub.SubscriberID, func(ctx context.Context) error {
		current, err := r.subs.GetBySubscriberID(ctx, sub.SubscriberID)
		if err != nil {
			return err
		}
		changed := false
		if current.Status != subscription.StatusActive &&
			subscription.CanTransition(current.Status, subscription.StatusActive) {
			if err := current.Transition(subscription.StatusActive); err != nil {
				return err
			}
			changed = true
		}
		if ev.PeriodStart != nil && ev.PeriodEnd != nil {
			current.PeriodStart = *ev.PeriodStart
			current.PeriodEnd = *ev.PeriodEnd
			changed = true
		}
		if !changed {
			return nil
		}
		current.UpdatedAt = r.now()
		return r.subs.Save(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeApplied, SubscriberID: sub.SubscriberID}, nil
}

func (r *Reconciler) handlePaymentFailed(ctx context.Context, ev *gateway.Event) (*Result, error) {
	sub, err := r.subs.GetByGatewaySubscriptionID(ctx, ev.SubscriptionID)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		r.logger.LogAttrs(ctx, slog.LevelWarn, "payment failure for unknown subscription",
			slog.String("event_id", ev.ID),
			slog.String("gateway_subscription_id", ev.SubscriptionID),
		)
		return &Result{Outcome: OutcomeIgnored}, nil
	case err != nil:
		return nil, err
	}

	// Repeated failures inside one grace window no-op in the pause manager.
	if _, err := r.pauses.PauseForPaymentFailure(ctx, sub.SubscriberID); err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeApplied, SubscriberID: sub.SubscriberID}, nil
}

// refresh re-reads the subscription under its lock and applies the event.
func (r *Reconciler) refresh(ctx context.Context, subscriberID uuid.UUID, ev *gateway.Event) error {
	return r.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := r.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		r.applyEvent(ctx, sub, ev)
		return r.subs.Save(ctx, sub)
	})
}

// applyEvent copies the event's view of the subscription onto the local
// record: gateway references, period boundaries, status, and pricing when
// the price id is known to the catalog.
func (r *Reconciler) applyEvent(ctx context.Context, sub *subscription.Subscription, ev *gateway.Event) {
	if ev.SubscriptionID != "" {
		sub.GatewaySubscriptionID = ev.SubscriptionID
	}
	if ev.CustomerID != "" {
		sub.GatewayCustomerID = ev.CustomerID
	}
	if ev.PeriodStart != nil {
		sub.PeriodStart = *ev.PeriodStart
	}
	if ev.PeriodEnd != nil {
		sub.PeriodEnd = *ev.PeriodEnd
	}

	if p, period, err := r.catalog.ByPriceID(ev.PriceID); err == nil {
		sub.Tier = p.Tier
		sub.BillingPeriod = period
		if price, err := p.Price(period); err == nil {
			sub.NextAmount = price
		}
		// The gateway billing the pending tier's price means the switch
		// already happened there; a price still on the old tier leaves the
		// scheduled downgrade in place for the renewal job.
		if sub.PendingTier != nil && *sub.PendingTier == p.Tier {
			sub.PendingTier = nil
		}
	} else if ev.PriceID != "" {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "event price id not in catalog",
			slog.String("event_id", ev.ID),
			slog.String("price_id", ev.PriceID),
		)
	}
	if !sub.Tier.Valid() {
		// Gateway-first creation with an unknown price still needs a valid
		// record; the entry tier is the safe floor until an update arrives.
		sub.Tier = plan.TierStarter
	}

	if status := mapProviderStatus(ev.Status); status != "" && status != sub.Status {
		if err := sub.Transition(status); err != nil {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "skipping status refresh",
				slog.String("event_id", ev.ID),
				slog.String("from", string(sub.Status)),
				slog.String("to", string(status)),
			)
		}
	}
	sub.UpdatedAt = r.now()
}

// mapProviderStatus normalizes the provider's status vocabulary. Unmapped
// statuses return empty and leave the local status alone.
func mapProviderStatus(status string) subscription.Status {
	switch status {
	case "active", "trialing":
		return subscription.StatusActive
	case "past_due":
		return subscription.StatusPastDue
	case "canceled", "cancelled":
		return subscription.StatusCancelled
	default:
		return ""
	}
}
