package reconciler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellcare/billing/pkg/booking"
	"github.com/dwellcare/billing/pkg/gateway"
	"github.com/dwellcare/billing/pkg/pause"
	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/reconciler"
	"github.com/dwellcare/billing/pkg/redis"
	"github.com/dwellcare/billing/pkg/subscription"
)

// stubGateway serves customer lookups and accepts pause/resume calls; any
// other method panics.
type stubGateway struct {
	gateway.Gateway
	customers map[string]*gateway.Customer
}

func (g *stubGateway) RetrieveCustomer(_ context.Context, customerID string) (*gateway.Customer, error) {
	c, ok := g.customers[customerID]
	if !ok {
		return nil, gateway.ErrCustomerNotFound
	}
	return c, nil
}

func (g *stubGateway) PauseSubscription(context.Context, string) error  { return nil }
func (g *stubGateway) ResumeSubscription(context.Context, string) error { return nil }

// stubDirectory maps emails to subscriber ids.
type stubDirectory struct {
	byEmail map[string]uuid.UUID
	err     error
}

func (d *stubDirectory) FindByEmail(_ context.Context, email string) (uuid.UUID, error) {
	if d.err != nil {
		return uuid.Nil, d.err
	}
	id, ok := d.byEmail[email]
	if !ok {
		return uuid.Nil, reconciler.ErrSubscriberNotFound
	}
	return id, nil
}

type fixture struct {
	rec       *reconciler.Reconciler
	subs      *subscription.MemoryStore
	pauses    *subscription.MemoryPauseStore
	gw        *stubGateway
	directory *stubDirectory
	now       time.Time
}

func newFixture(t *testing.T, opts ...reconciler.Option) *fixture {
	t.Helper()
	f := &fixture{
		subs:      subscription.NewMemoryStore(),
		pauses:    subscription.NewMemoryPauseStore(),
		gw:        &stubGateway{customers: make(map[string]*gateway.Customer)},
		directory: &stubDirectory{byEmail: make(map[string]uuid.UUID)},
		now:       time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	locker := subscription.NewKeyedLocker()
	pauseMgr := pause.NewManager(f.subs, f.pauses, locker, f.gw, booking.NewMemoryChecker(),
		pause.WithClock(func() time.Time { return f.now }),
	)
	opts = append([]reconciler.Option{
		reconciler.WithClock(func() time.Time { return f.now }),
	}, opts...)
	f.rec = reconciler.New(f.subs, locker, f.gw, testCatalog(), pauseMgr, f.directory, opts...)
	return f
}

func (f *fixture) seedSubscription(t *testing.T, mutate func(*subscription.Subscription)) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		SubscriberID:          uuid.New(),
		Tier:                  plan.TierHomeCare,
		Status:                subscription.StatusActive,
		BillingPeriod:         plan.BillingPeriodMonthly,
		PeriodStart:           f.now.AddDate(0, 0, -10),
		PeriodEnd:             f.now.AddDate(0, 0, 20),
		GatewayCustomerID:     "ctm_" + uuid.NewString(),
		GatewaySubscriptionID: "sub_" + uuid.NewString(),
	}
	if mutate != nil {
		mutate(sub)
	}
	require.NoError(t, f.subs.Save(context.Background(), sub))
	return sub
}

func TestProcessSubscriptionCreated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("resolves by metadata and creates the record", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		subscriberID := uuid.New()

		result, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_1",
			Kind:           gateway.EventSubscriptionCreated,
			SubscriptionID: "sub_new",
			CustomerID:     "ctm_new",
			SubscriberID:   subscriberID.String(),
			Status:         "active",
			PriceID:        "pri_homecare_monthly",
		})
		require.NoError(t, err)
		assert.Equal(t, reconciler.OutcomeApplied, result.Outcome)
		assert.Equal(t, reconciler.ResolvedByMetadata, result.Resolution.Method)

		sub, err := f.subs.GetBySubscriberID(ctx, subscriberID)
		require.NoError(t, err)
		assert.Equal(t, "sub_new", sub.GatewaySubscriptionID)
		assert.Equal(t, "ctm_new", sub.GatewayCustomerID)
		assert.Equal(t, plan.TierHomeCare, sub.Tier)
		assert.Equal(t, int64(5499), sub.NextAmount.Amount)
		assert.Equal(t, subscription.StatusActive, sub.Status)
	})

	t.Run("resolves by gateway customer reference", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		existing := f.seedSubscription(t, func(s *subscription.Subscription) {
			s.GatewaySubscriptionID = ""
		})

		result, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_2",
			Kind:           gateway.EventSubscriptionCreated,
			SubscriptionID: "sub_attached",
			CustomerID:     existing.GatewayCustomerID,
		})
		require.NoError(t, err)
		assert.Equal(t, reconciler.ResolvedByCustomerRef, result.Resolution.Method)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, "sub_attached", sub.GatewaySubscriptionID)
	})

	t.Run("resolves by email as the last rung", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		subscriberID := uuid.New()
		f.gw.customers["ctm_em"] = &gateway.Customer{ID: "ctm_em", Email: "owner@example.com"}
		f.directory.byEmail["owner@example.com"] = subscriberID

		result, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_3",
			Kind:           gateway.EventSubscriptionCreated,
			SubscriptionID: "sub_em",
			CustomerID:     "ctm_em",
			PriceID:        "pri_priority_monthly",
		})
		require.NoError(t, err)
		assert.Equal(t, reconciler.ResolvedByEmail, result.Resolution.Method)
		assert.Equal(t, subscriberID, result.SubscriberID)

		sub, err := f.subs.GetBySubscriberID(ctx, subscriberID)
		require.NoError(t, err)
		assert.Equal(t, plan.TierPriority, sub.Tier)
		assert.Equal(t, "owner@example.com", sub.Email, "gateway-first records keep a notification address")
	})

	t.Run("unresolved events are dropped with an alarm, not retried", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gw.customers["ctm_ghost"] = &gateway.Customer{ID: "ctm_ghost", Email: "stranger@example.com"}

		result, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_4",
			Kind:           gateway.EventSubscriptionCreated,
			SubscriptionID: "sub_ghost",
			CustomerID:     "ctm_ghost",
		})
		require.NoError(t, err, "unresolved is terminal, not retryable")
		assert.Equal(t, reconciler.OutcomeUnresolved, result.Outcome)

		_, err = f.subs.GetByGatewaySubscriptionID(ctx, "sub_ghost")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("replayed creation refreshes instead of duplicating", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		existing := f.seedSubscription(t, nil)

		result, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_5",
			Kind:           gateway.EventSubscriptionCreated,
			SubscriptionID: existing.GatewaySubscriptionID,
			CustomerID:     existing.GatewayCustomerID,
			PriceID:        "pri_priority_monthly",
		})
		require.NoError(t, err)
		assert.Equal(t, reconciler.OutcomeApplied, result.Outcome)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, plan.TierPriority, sub.Tier, "replay still refreshes")
	})
}

func TestProcessSubscriptionUpdated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("refreshes period boundaries and pricing", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		existing := f.seedSubscription(t, nil)
		newStart := f.now
		newEnd := f.now.AddDate(0, 1, 0)

		result, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_6",
			Kind:           gateway.EventSubscriptionUpdated,
			SubscriptionID: existing.GatewaySubscriptionID,
			PriceID:        "pri_priority_monthly",
			PeriodStart:    &newStart,
			PeriodEnd:      &newEnd,
		})
		require.NoError(t, err)
		assert.Equal(t, reconciler.OutcomeApplied, result.Outcome)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, plan.TierPriority, sub.Tier)
		assert.Equal(t, int64(9999), sub.NextAmount.Amount)
		assert.Equal(t, newStart, sub.PeriodStart)
		assert.Equal(t, newEnd, sub.PeriodEnd)
	})

	t.Run("keeps a scheduled downgrade while the old price is still billed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		pending := plan.TierStarter
		existing := f.seedSubscription(t, func(s *subscription.Subscription) {
			s.Status = subscription.StatusPendingChange
			s.PendingTier = &pending
		})

		_, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_keep",
			Kind:           gateway.EventSubscriptionUpdated,
			SubscriptionID: existing.GatewaySubscriptionID,
			Status:         "active",
			PriceID:        "pri_homecare_monthly",
		})
		require.NoError(t, err)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, plan.TierHomeCare, sub.Tier)
		require.NotNil(t, sub.PendingTier, "downgrade stays scheduled until the gateway bills the new price")
		assert.Equal(t, plan.TierStarter, *sub.PendingTier)
	})

	t.Run("clears a pending change once the gateway bills the new price", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		pending := plan.TierStarter
		existing := f.seedSubscription(t, func(s *subscription.Subscription) {
			s.Status = subscription.StatusPendingChange
			s.PendingTier = &pending
		})

		_, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_clear",
			Kind:           gateway.EventSubscriptionUpdated,
			SubscriptionID: existing.GatewaySubscriptionID,
			Status:         "active",
			PriceID:        "pri_starter_monthly",
		})
		require.NoError(t, err)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, plan.TierStarter, sub.Tier)
		assert.Nil(t, sub.PendingTier)
	})

	t.Run("update before create falls back to creation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		subscriberID := uuid.New()

		result, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_7",
			Kind:           gateway.EventSubscriptionUpdated,
			SubscriptionID: "sub_race",
			SubscriberID:   subscriberID.String(),
			Status:         "active",
			PriceID:        "pri_homecare_monthly",
		})
		require.NoError(t, err)
		assert.Equal(t, reconciler.OutcomeApplied, result.Outcome)
		assert.Equal(t, reconciler.ResolvedByMetadata, result.Resolution.Method)

		sub, err := f.subs.GetBySubscriberID(ctx, subscriberID)
		require.NoError(t, err)
		assert.Equal(t, "sub_race", sub.GatewaySubscriptionID)
	})
}

func TestProcessSubscriptionDeleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	existing := f.seedSubscription(t, func(s *subscription.Subscription) {
		start := f.now.AddDate(0, 0, -2)
		end := f.now.AddDate(0, 1, 0)
		s.OpenPauseWindow(start, end)
	})

	ev := &gateway.Event{
		ID:             "evt_8",
		Kind:           gateway.EventSubscriptionDeleted,
		SubscriptionID: existing.GatewaySubscriptionID,
	}
	result, err := f.rec.Process(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, reconciler.OutcomeApplied, result.Outcome)

	sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, sub.Status)
	assert.False(t, sub.IsPaused, "a cancelled subscription may not stay paused")

	// Redelivery of the deletion is harmless.
	result, err = f.rec.Process(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, reconciler.OutcomeApplied, result.Outcome)
}

func TestProcessPaymentEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("payment failure opens the grace period", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		existing := f.seedSubscription(t, nil)

		ev := &gateway.Event{
			ID:             "evt_9",
			Kind:           gateway.EventPaymentFailed,
			SubscriptionID: existing.GatewaySubscriptionID,
		}
		_, err := f.rec.Process(ctx, ev)
		require.NoError(t, err)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPastDue, sub.Status)
		assert.True(t, sub.IsPaused)
		require.NotNil(t, sub.PauseEnd)
		assert.Equal(t, f.now.AddDate(0, 0, 7), *sub.PauseEnd)

		// A repeated failure inside the window changes nothing.
		ev.ID = "evt_10"
		_, err = f.rec.Process(ctx, ev)
		require.NoError(t, err)
		history, err := f.pauses.ListBySubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("payment success recovers a grace-period pause", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		existing := f.seedSubscription(t, nil)

		_, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_11",
			Kind:           gateway.EventPaymentFailed,
			SubscriptionID: existing.GatewaySubscriptionID,
		})
		require.NoError(t, err)

		_, err = f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_12",
			Kind:           gateway.EventPaymentSucceeded,
			SubscriptionID: existing.GatewaySubscriptionID,
		})
		require.NoError(t, err)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.False(t, sub.IsPaused)
	})

	t.Run("payment success reactivates without dropping a scheduled downgrade", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		pending := plan.TierStarter
		existing := f.seedSubscription(t, func(s *subscription.Subscription) {
			s.Status = subscription.StatusPendingChange
			s.PendingTier = &pending
		})

		_, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_renewcharge",
			Kind:           gateway.EventPaymentSucceeded,
			SubscriptionID: existing.GatewaySubscriptionID,
		})
		require.NoError(t, err)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		require.NotNil(t, sub.PendingTier, "the renewal job still owns the tier flip")
		assert.Equal(t, plan.TierStarter, *sub.PendingTier)
	})

	t.Run("payment success leaves a manual pause open", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		existing := f.seedSubscription(t, nil)

		record := &subscription.PauseRecord{
			SubscriptionID: existing.ID,
			Reason:         subscription.PauseReasonManual,
			StartDate:      f.now.AddDate(0, 0, -1),
			ScheduledEnd:   f.now.AddDate(0, 2, 0),
			Status:         subscription.PauseStatusActive,
		}
		require.NoError(t, f.pauses.Save(ctx, record))
		existing.OpenPauseWindow(record.StartDate, record.ScheduledEnd)
		require.NoError(t, f.subs.Save(ctx, existing))

		_, err := f.rec.Process(ctx, &gateway.Event{
			ID:             "evt_13",
			Kind:           gateway.EventPaymentSucceeded,
			SubscriptionID: existing.GatewaySubscriptionID,
		})
		require.NoError(t, err)

		sub, err := f.subs.GetBySubscriberID(ctx, existing.SubscriberID)
		require.NoError(t, err)
		assert.True(t, sub.IsPaused, "a voluntary pause outlives a successful charge")
	})
}

func TestProcessDedup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	newDedupFixture := func(t *testing.T) (*fixture, *reconciler.Reconciler) {
		t.Helper()
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		f := newFixture(t, reconciler.WithEventDeduper(redis.NewEventLedger(client)))
		return f, f.rec
	}

	t.Run("replayed event ids return early", func(t *testing.T) {
		t.Parallel()

		f, rec := newDedupFixture(t)
		existing := f.seedSubscription(t, nil)

		ev := &gateway.Event{
			ID:             "evt_dedup",
			Kind:           gateway.EventSubscriptionUpdated,
			SubscriptionID: existing.GatewaySubscriptionID,
			PriceID:        "pri_priority_monthly",
		}
		first, err := rec.Process(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, reconciler.OutcomeApplied, first.Outcome)

		second, err := rec.Process(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, reconciler.OutcomeReplay, second.Outcome)
	})

	t.Run("failed processing reopens the event for retry", func(t *testing.T) {
		t.Parallel()

		f, rec := newDedupFixture(t)
		subscriberID := uuid.New()
		f.gw.customers["ctm_flaky"] = &gateway.Customer{ID: "ctm_flaky", Email: "flaky@example.com"}
		f.directory.byEmail["flaky@example.com"] = subscriberID
		f.directory.err = errors.New("directory timeout")

		ev := &gateway.Event{
			ID:             "evt_retry",
			Kind:           gateway.EventSubscriptionCreated,
			SubscriptionID: "sub_flaky",
			CustomerID:     "ctm_flaky",
			PriceID:        "pri_homecare_monthly",
		}
		_, err := rec.Process(ctx, ev)
		require.Error(t, err, "transient failures propagate for retry")

		f.directory.err = nil
		result, err := rec.Process(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, reconciler.OutcomeApplied, result.Outcome, "retry is not mistaken for a replay")
	})
}

func testCatalog() *plan.Catalog {
	return plan.MustNewCatalog(
		plan.Plan{
			Tier: plan.TierStarter,
			Prices: map[plan.BillingPeriod]plan.Money{
				plan.BillingPeriodMonthly: {Amount: 2199, Currency: "USD"},
			},
			PriceIDs: map[plan.BillingPeriod]string{
				plan.BillingPeriodMonthly: "pri_starter_monthly",
			},
			VisitsPerMonth: 1,
		},
		plan.Plan{
			Tier: plan.TierHomeCare,
			Prices: map[plan.BillingPeriod]plan.Money{
				plan.BillingPeriodMonthly: {Amount: 5499, Currency: "USD"},
			},
			PriceIDs: map[plan.BillingPeriod]string{
				plan.BillingPeriodMonthly: "pri_homecare_monthly",
			},
			VisitsPerMonth: 1,
		},
		plan.Plan{
			Tier: plan.TierPriority,
			Prices: map[plan.BillingPeriod]plan.Money{
				plan.BillingPeriodMonthly: {Amount: 9999, Currency: "USD"},
			},
			PriceIDs: map[plan.BillingPeriod]string{
				plan.BillingPeriodMonthly: "pri_priority_monthly",
			},
			VisitsPerMonth: 2,
		},
	)
}
