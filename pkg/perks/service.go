package perks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/subscription"
)

// Service is the perk usage ledger: it records consumption against
// tier-specific quotas and owns the rule that consuming any perk permanently
// blocks self-service cancellation for the cycle's subscription.
type Service struct {
	catalog *plan.Catalog
	subs    subscription.Store
	usage   subscription.PerkUsageStore
	locker  subscription.Locker
	cache   *usageCache
	logger  *slog.Logger
}

// Option configures the perks service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCacheSize sets the capacity of the read cache in front of the usage
// store. The cache is an optimization only: it is invalidated on every write
// and the store stays the source of truth.
func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cache = newUsageCache(size)
		}
	}
}

// NewService creates the perk usage ledger. Panics on nil dependencies to
// fail fast during initialization.
func NewService(catalog *plan.Catalog, subs subscription.Store, usage subscription.PerkUsageStore, locker subscription.Locker, opts ...Option) *Service {
	if catalog == nil {
		panic("perks: plan catalog is required")
	}
	if subs == nil {
		panic("perks: subscription store is required")
	}
	if usage == nil {
		panic("perks: perk usage store is required")
	}
	if locker == nil {
		panic("perks: locker is required")
	}

	s := &Service{
		catalog: catalog,
		subs:    subs,
		usage:   usage,
		locker:  locker,
		cache:   newUsageCache(defaultCacheSize),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUsage returns the subscriber's current-cycle usage record, creating
// nothing. Reads go through the cache; misses fall through to the store.
func (s *Service) GetUsage(ctx context.Context, subscriberID uuid.UUID) (*subscription.PerkUsage, error) {
	if cached, ok := s.cache.get(subscriberID); ok {
		return cached, nil
	}
	usage, err := s.usage.GetBySubscriberID(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	s.cache.put(subscriberID, usage)
	return usage, nil
}

// CanUsePerk reports whether the subscriber has remaining quota for a perk
// this cycle. A subscriber with no usage record yet has the full quota of
// their current tier.
func (s *Service) CanUsePerk(ctx context.Context, subscriberID uuid.UUID, perk plan.Perk) (bool, error) {
	remaining, err := s.Remaining(ctx, subscriberID, perk)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Remaining returns the unconsumed quota for a perk this cycle.
func (s *Service) Remaining(ctx context.Context, subscriberID uuid.UUID, perk plan.Perk) (int64, error) {
	usage, err := s.GetUsage(ctx, subscriberID)
	if err == nil {
		return usage.Remaining(perk), nil
	}
	if !errors.Is(err, subscription.ErrPerkUsageNotFound) {
		return 0, err
	}

	// No consumption yet this cycle: the full tier quota remains.
	sub, err := s.subs.GetBySubscriberID(ctx, subscriberID)
	if err != nil {
		return 0, err
	}
	p, err := s.catalog.Get(sub.Tier)
	if err != nil {
		return 0, err
	}
	return p.PerkQuotas[perk], nil
}

// TrackPerkUsage records consumption of a perk. The usage record is created
// lazily on first use; the owning subscription's cancellation lock is set on
// the cycle's first consumption and carries the perk that triggered it.
func (s *Service) TrackPerkUsage(ctx context.Context, subscriberID uuid.UUID, perk plan.Perk, amount int64) (*subscription.PerkUsage, error) {
	var result *subscription.PerkUsage

	err := s.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := s.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if sub.Status == subscription.StatusCancelled || sub.Status == subscription.StatusSuspended {
			return ErrSubscriptionInactive
		}

		usage, err := s.loadOrCreate(ctx, sub)
		if err != nil {
			return err
		}

		if err := usage.Consume(perk, amount); err != nil {
			return err
		}
		if err := s.usage.Save(ctx, usage); err != nil {
			return err
		}

		if !sub.CancellationLocked {
			reason := fmt.Sprintf("%s benefit already used this billing cycle", perk.Label())
			sub.LockCancellation(reason, usage.UpdatedAt)
			if err := s.subs.Save(ctx, sub); err != nil {
				return err
			}
		}

		s.cache.invalidate(subscriberID)
		result = usage
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "perk usage tracked",
		slog.String("subscriber_id", subscriberID.String()),
		slog.String("perk", string(perk)),
		slog.Int64("amount", amount),
	)
	return result, nil
}

// UseVisit consumes one visit from the cycle's allowance. Visits are the
// included service, not a perk, so they never trigger the cancellation lock;
// their count feeds the carryover calculation at tier changes.
func (s *Service) UseVisit(ctx context.Context, subscriberID uuid.UUID) (*subscription.PerkUsage, error) {
	var result *subscription.PerkUsage

	err := s.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := s.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if sub.Status == subscription.StatusCancelled || sub.Status == subscription.StatusSuspended {
			return ErrSubscriptionInactive
		}

		usage, err := s.loadOrCreate(ctx, sub)
		if err != nil {
			return err
		}
		if usage.VisitsUsed >= usage.VisitAllowance {
			return ErrNoVisitsRemaining
		}

		usage.VisitsUsed++
		if err := s.usage.Save(ctx, usage); err != nil {
			return err
		}

		s.cache.invalidate(subscriberID)
		result = usage
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) loadOrCreate(ctx context.Context, sub *subscription.Subscription) (*subscription.PerkUsage, error) {
	usage, err := s.usage.GetBySubscriberID(ctx, sub.SubscriberID)
	if err == nil {
		return usage, nil
	}
	if !errors.Is(err, subscription.ErrPerkUsageNotFound) {
		return nil, err
	}

	p, err := s.catalog.Get(sub.Tier)
	if err != nil {
		return nil, err
	}
	return subscription.NewPerkUsage(sub.SubscriberID, p, sub.PeriodStart, 0), nil
}
