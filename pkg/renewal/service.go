package renewal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/subscription"
)

// RunError captures one failed item of a renewal run.
type RunError struct {
	SubscriberID uuid.UUID
	Err          error
}

// RunResult aggregates one renewal run. Failures are captured per item and
// never abort the rest of the batch.
type RunResult struct {
	Candidates int
	Renewed    int
	Skipped    int
	Errors     []RunError
}

// Service is the cycle-boundary job: it rolls billing periods forward,
// applies downgrades scheduled by the plan change orchestrator, re-prices the
// next charge, and replaces the perk usage record for the new cycle.
type Service struct {
	subs    subscription.Store
	usage   subscription.PerkUsageStore
	catalog *plan.Catalog
	locker  subscription.Locker
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the renewal service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
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

// NewService creates the renewal job. Panics on nil dependencies to fail
// fast during initialization.
func NewService(subs subscription.Store, usage subscription.PerkUsageStore, catalog *plan.Catalog, locker subscription.Locker, opts ...Option) *Service {
	if subs == nil {
		panic("renewal: subscription store is required")
	}
	if usage == nil {
		panic("renewal: perk usage store is required")
	}
	if catalog == nil {
		panic("renewal: plan catalog is required")
	}
	if locker == nil {
		panic("renewal: locker is required")
	}

	s := &Service{
		subs:    subs,
		usage:   usage,
		catalog: catalog,
		locker:  locker,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run renews every subscription whose billing period has ended. Each
// candidate is re-read and re-checked under its subscriber lock so a
// concurrent webhook that already rolled the period forward skips the record.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	now := s.now()
	candidates, err := s.subs.ListRenewalsDue(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Candidates: len(candidates)}
	for _, candidate := range candidates {
		renewed, err := s.renewOne(ctx, candidate.SubscriberID)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, RunError{SubscriberID: candidate.SubscriberID, Err: err})
			s.logger.LogAttrs(ctx, slog.LevelError, "renewal failed",
				slog.String("subscriber_id", candidate.SubscriberID.String()),
				slog.String("error", err.Error()),
			)
		case renewed:
			result.Renewed++
		default:
			result.Skipped++
		}
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "renewal run finished",
		slog.Int("candidates", result.Candidates),
		slog.Int("renewed", result.Renewed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", len(result.Errors)),
	)
	return result, nil
}

func (s *Service) renewOne(ctx context.Context, subscriberID uuid.UUID) (bool, error) {
	renewed := false

	err := s.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := s.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		now := s.now()
		renewable := sub.Status == subscription.StatusActive || sub.Status == subscription.StatusPendingChange
		if !renewable || sub.PeriodEnd.After(now) {
			return nil
		}

		// A downgrade recorded mid-cycle takes effect here. Keyed on the
		// pending tier, not the status: a payment webhook may have flipped
		// the record back to active while the downgrade still waits.
		if sub.PendingTier != nil {
			sub.Tier = *sub.PendingTier
			sub.PendingTier = nil
			if err := sub.Transition(subscription.StatusActive); err != nil {
				return err
			}
		}

		p, err := s.catalog.Get(sub.Tier)
		if err != nil {
			return err
		}
		price, err := p.Price(sub.BillingPeriod)
		if err != nil {
			return err
		}

		// Roll forward past any missed boundaries, e.g. after downtime.
		for !sub.PeriodEnd.After(now) {
			sub.PeriodStart = sub.PeriodEnd
			sub.PeriodEnd = nextPeriodEnd(sub.PeriodEnd, sub.BillingPeriod)
		}
		sub.NextAmount = price

		// Fresh usage record for the new cycle. Carryover extends the visit
		// allowance for exactly this cycle and is cleared once applied.
		usage := subscription.NewPerkUsage(sub.SubscriberID, p, sub.PeriodStart, sub.CarryoverVisits)
		sub.CarryoverVisits = 0
		sub.UpdatedAt = now

		if err := s.usage.Save(ctx, usage); err != nil {
			return err
		}
		if err := s.subs.Save(ctx, sub); err != nil {
			return err
		}
		renewed = true
		return nil
	})
	if err != nil || !renewed {
		return false, err
	}
	return true, nil
}

func nextPeriodEnd(from time.Time, period plan.BillingPeriod) time.Time {
	if period == plan.BillingPeriodYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
