package planchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/gateway"
	"github.com/dwellcare/billing/pkg/notify"
	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/proration"
	"github.com/dwellcare/billing/pkg/subscription"
)

// ChangeType distinguishes the two effective-date policies: upgrades take
// effect immediately, downgrades at the end of the current period.
type ChangeType string

const (
	ChangeUpgrade   ChangeType = "upgrade"
	ChangeDowngrade ChangeType = "downgrade"
)

// Preview is the computed outcome of a plan change without any side effects.
type Preview struct {
	SubscriberID  uuid.UUID
	FromTier      plan.Tier
	ToTier        plan.Tier
	BillingPeriod plan.BillingPeriod
	ChangeType    ChangeType
	EffectiveAt   time.Time
	Proration     proration.Result
	Carryover     proration.CarryoverResult
}

// Result is the outcome of an executed plan change. GatewayPush records the
// best-effort gateway synchronization; local state is committed even when the
// push fails, so callers inspect the outcome rather than an error.
type Result struct {
	Preview
	Subscription *subscription.Subscription
	GatewayPush  gateway.Outcome
}

// Service orchestrates tier changes: validation, proration, visit carryover,
// the downgrade perk check, local persistence and the gateway push.
type Service struct {
	catalog  *plan.Catalog
	subs     subscription.Store
	usage    subscription.PerkUsageStore
	locker   subscription.Locker
	gw       gateway.Gateway
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the plan change service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the subscriber notification channel.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the plan change orchestrator. Panics on nil dependencies
// to fail fast during initialization.
func NewService(catalog *plan.Catalog, subs subscription.Store, usage subscription.PerkUsageStore, locker subscription.Locker, gw gateway.Gateway, opts ...Option) *Service {
	if catalog == nil {
		panic("planchange: plan catalog is required")
	}
	if subs == nil {
		panic("planchange: subscription store is required")
	}
	if usage == nil {
		panic("planchange: perk usage store is required")
	}
	if locker == nil {
		panic("planchange: locker is required")
	}
	if gw == nil {
		panic("planchange: payment gateway is required")
	}

	s := &Service{
		catalog:  catalog,
		subs:     subs,
		usage:    usage,
		locker:   locker,
		gw:       gw,
		notifier: notify.NewMulti(nil),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetChangePreview computes what a plan change would do without executing it:
// same validation, proration and carryover as ChangePlan, no writes and no
// gateway call.
func (s *Service) GetChangePreview(ctx context.Context, subscriberID uuid.UUID, toTier plan.Tier, period plan.BillingPeriod) (*Preview, error) {
	sub, err := s.subs.GetBySubscriberID(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	preview, err := s.compute(ctx, sub, toTier, period)
	if err != nil {
		return nil, err
	}
	return &preview, nil
}

// ChangePlan moves the subscriber to a new tier on the given billing period.
//
// Upgrades apply immediately: the tier switches now, the prorated difference
// is charged through the gateway (which computes its own proration from the
// price swap), and unused visits carry over to the next cycle up to the cap.
// Downgrades are deferred: the subscription enters pending-change with the
// target tier recorded, and the renewal job completes the switch at period
// end. A downgrade is rejected while perks exclusive to the current tier have
// been consumed this cycle.
//
// Local state is committed before the gateway is told. A failed gateway push
// is logged and surfaced in the result but never rolls the change back; the
// webhook reconciler trues things up later.
func (s *Service) ChangePlan(ctx context.Context, subscriberID uuid.UUID, toTier plan.Tier, period plan.BillingPeriod) (*Result, error) {
	var result *Result

	err := s.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := s.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}

		preview, err := s.compute(ctx, sub, toTier, period)
		if err != nil {
			return err
		}

		now := s.now()
		switch preview.ChangeType {
		case ChangeUpgrade:
			sub.Tier = toTier
			sub.PendingTier = nil
		case ChangeDowngrade:
			if err := sub.Transition(subscription.StatusPendingChange); err != nil {
				return err
			}
			pending := toTier
			sub.PendingTier = &pending
		}
		sub.BillingPeriod = period
		sub.NextAmount = preview.Proration.NextAmount
		sub.CarryoverVisits = preview.Carryover.CarryoverVisits
		sub.UpdatedAt = now

		if err := s.subs.Save(ctx, sub); err != nil {
			return err
		}

		result = &Result{
			Preview:      preview,
			Subscription: sub,
			GatewayPush:  s.pushToGateway(ctx, sub, preview),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "plan changed",
		slog.String("subscriber_id", subscriberID.String()),
		slog.String("from_tier", string(result.FromTier)),
		slog.String("to_tier", string(result.ToTier)),
		slog.String("change_type", string(result.ChangeType)),
		slog.Int64("prorated_difference", result.Proration.ProratedDifference),
		slog.Int("carryover_visits", result.Carryover.CarryoverVisits),
	)
	s.sendChangeNotification(ctx, result)
	return result, nil
}

// compute runs validation and the pure calculations shared by ChangePlan and
// GetChangePreview.
func (s *Service) compute(ctx context.Context, sub *subscription.Subscription, toTier plan.Tier, period plan.BillingPeriod) (Preview, error) {
	fromPlan, err := s.catalog.Get(sub.Tier)
	if err != nil {
		return Preview{}, err
	}
	toPlan, err := s.catalog.Get(toTier)
	if err != nil {
		return Preview{}, err
	}
	if sub.Tier == toTier {
		return Preview{}, ErrSameTier
	}
	if sub.Status != subscription.StatusActive {
		return Preview{}, fmt.Errorf("%w: status is %s", ErrNotActive, sub.Status)
	}

	oldPrice, err := fromPlan.Price(period)
	if err != nil {
		return Preview{}, err
	}
	newPrice, err := toPlan.Price(period)
	if err != nil {
		return Preview{}, err
	}

	usedVisits := 0
	var consumed []plan.Perk
	usage, err := s.usage.GetBySubscriberID(ctx, sub.SubscriberID)
	switch {
	case err == nil:
		usedVisits = usage.VisitsUsed
		consumed = usage.ConsumedPerks()
	case errors.Is(err, subscription.ErrPerkUsageNotFound):
		// Nothing consumed this cycle.
	default:
		return Preview{}, err
	}

	changeType := ChangeDowngrade
	if plan.IsUpgrade(sub.Tier, toTier) {
		changeType = ChangeUpgrade
	}

	if changeType == ChangeDowngrade {
		if blocking, err := s.blockingPerks(sub.Tier, toTier, consumed); err != nil {
			return Preview{}, err
		} else if len(blocking) > 0 {
			return Preview{}, &DowngradeBlockedError{Perks: blocking}
		}
	}

	now := s.now()
	prorated, err := proration.Calculate(proration.Input{
		PeriodStart: sub.PeriodStart,
		PeriodEnd:   sub.PeriodEnd,
		OldPrice:    oldPrice,
		NewPrice:    newPrice,
		Now:         now,
	})
	if err != nil {
		return Preview{}, err
	}

	effectiveAt := now
	if changeType == ChangeDowngrade {
		effectiveAt = sub.PeriodEnd
	}

	return Preview{
		SubscriberID:  sub.SubscriberID,
		FromTier:      sub.Tier,
		ToTier:        toTier,
		BillingPeriod: period,
		ChangeType:    changeType,
		EffectiveAt:   effectiveAt,
		Proration:     prorated,
		Carryover:     proration.CalculateCarryover(fromPlan.VisitsPerMonth, toPlan.VisitsPerMonth, usedVisits),
	}, nil
}

// blockingPerks returns the consumed perks that the target tier does not
// grant, in catalog order.
func (s *Service) blockingPerks(from, to plan.Tier, consumed []plan.Perk) ([]plan.Perk, error) {
	if len(consumed) == 0 {
		return nil, nil
	}
	exclusive, err := s.catalog.ExclusivePerks(from, to)
	if err != nil {
		return nil, err
	}

	consumedSet := make(map[plan.Perk]struct{}, len(consumed))
	for _, perk := range consumed {
		consumedSet[perk] = struct{}{}
	}
	var blocking []plan.Perk
	for _, perk := range exclusive {
		if _, ok := consumedSet[perk]; ok {
			blocking = append(blocking, perk)
		}
	}
	return blocking, nil
}

// pushToGateway tells the gateway about an immediate tier switch. Only
// upgrades push: a deferred downgrade is applied at renewal, and pushing it
// early would change what the gateway charges for the running period.
func (s *Service) pushToGateway(ctx context.Context, sub *subscription.Subscription, preview Preview) gateway.Outcome {
	const operation = "update_subscription"

	if preview.ChangeType != ChangeUpgrade || sub.GatewaySubscriptionID == "" {
		return gateway.Skipped(operation)
	}
	toPlan, err := s.catalog.Get(preview.ToTier)
	if err != nil {
		return gateway.Skipped(operation)
	}
	priceID := toPlan.PriceID(preview.BillingPeriod)
	if priceID == "" {
		return gateway.Skipped(operation)
	}

	return gateway.BestEffort(ctx, s.logger, operation, func(ctx context.Context) error {
		return s.gw.UpdateSubscription(ctx, gateway.UpdateSubscriptionParams{
			SubscriptionID: sub.GatewaySubscriptionID,
			PriceID:        priceID,
			Prorate:        true,
		})
	})
}

func (s *Service) sendChangeNotification(ctx context.Context, result *Result) {
	title := "Your plan has changed"
	message := fmt.Sprintf("You are now on the %s plan.", result.ToTier)
	if result.ChangeType == ChangeDowngrade {
		title = "Your plan change is scheduled"
		message = fmt.Sprintf("You will move to the %s plan on %s.", result.ToTier, result.EffectiveAt.Format("January 2, 2006"))
	}

	err := s.notifier.Send(ctx, notify.Notification{
		SubscriberID: result.SubscriberID,
		Email:        result.Subscription.Email,
		Kind:         notify.KindPlanChanged,
		Title:        title,
		Message:      message,
		Data: map[string]any{
			"from_tier":        string(result.FromTier),
			"to_tier":          string(result.ToTier),
			"change_type":      string(result.ChangeType),
			"effective_at":     result.EffectiveAt,
			"immediate_charge": result.Proration.ImmediateCharge.Amount,
			"credit_amount":    result.Proration.CreditAmount.Amount,
		},
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to send plan change notification",
			slog.String("subscriber_id", result.SubscriberID.String()),
			slog.String("error", err.Error()),
		)
	}
}
