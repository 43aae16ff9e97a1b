package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/subscription"
)

func activeSubscription(subscriberID uuid.UUID) *subscription.Subscription {
	now := time.Now().UTC()
	return &subscription.Subscription{
		ID:            uuid.New(),
		SubscriberID:  subscriberID,
		Tier:          plan.TierHomeCare,
		Status:        subscription.StatusActive,
		BillingPeriod: plan.BillingPeriodMonthly,
		PeriodStart:   now,
		PeriodEnd:     now.AddDate(0, 1, 0),
		NextAmount:    plan.Money{Amount: 5499, Currency: "USD"},
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	t.Run("allowed paths", func(t *testing.T) {
		t.Parallel()

		allowed := [][2]subscription.Status{
			{subscription.StatusActive, subscription.StatusPastDue},
			{subscription.StatusActive, subscription.StatusPendingChange},
			{subscription.StatusActive, subscription.StatusCancelled},
			{subscription.StatusPastDue, subscription.StatusActive},
			{subscription.StatusPastDue, subscription.StatusSuspended},
			{subscription.StatusPendingChange, subscription.StatusActive},
			{subscription.StatusSuspended, subscription.StatusActive},
		}
		for _, pair := range allowed {
			assert.True(t, subscription.CanTransition(pair[0], pair[1]),
				"%s -> %s should be allowed", pair[0], pair[1])
		}
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		t.Parallel()

		for _, to := range []subscription.Status{
			subscription.StatusActive,
			subscription.StatusPastDue,
			subscription.StatusPendingChange,
			subscription.StatusSuspended,
		} {
			assert.False(t, subscription.CanTransition(subscription.StatusCancelled, to))
		}
	})

	t.Run("suspended cannot go past due", func(t *testing.T) {
		t.Parallel()

		assert.False(t, subscription.CanTransition(subscription.StatusSuspended, subscription.StatusPastDue))
	})

	t.Run("transition mutates status", func(t *testing.T) {
		t.Parallel()

		sub := activeSubscription(uuid.New())
		require.NoError(t, sub.Transition(subscription.StatusPastDue))
		assert.Equal(t, subscription.StatusPastDue, sub.Status)

		err := sub.Transition(subscription.StatusPendingChange)
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
		assert.Equal(t, subscription.StatusPastDue, sub.Status, "failed transition must not mutate")
	})
}

func TestSubscription_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid record", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, activeSubscription(uuid.New()).Validate())
	})

	t.Run("paused without window", func(t *testing.T) {
		t.Parallel()

		sub := activeSubscription(uuid.New())
		sub.IsPaused = true
		assert.ErrorIs(t, sub.Validate(), subscription.ErrInconsistentPauseState)
	})

	t.Run("window without paused flag", func(t *testing.T) {
		t.Parallel()

		sub := activeSubscription(uuid.New())
		start := time.Now().UTC()
		sub.PauseStart = &start
		assert.ErrorIs(t, sub.Validate(), subscription.ErrInconsistentPauseState)
	})

	t.Run("cancelled and paused is rejected", func(t *testing.T) {
		t.Parallel()

		sub := activeSubscription(uuid.New())
		sub.OpenPauseWindow(time.Now().UTC(), time.Now().UTC().AddDate(0, 1, 0))
		sub.Status = subscription.StatusCancelled
		assert.ErrorIs(t, sub.Validate(), subscription.ErrInconsistentPauseState)
	})

	t.Run("cancellation lock requires reason", func(t *testing.T) {
		t.Parallel()

		sub := activeSubscription(uuid.New())
		sub.CancellationLocked = true
		assert.ErrorIs(t, sub.Validate(), subscription.ErrMissingCancellationReason)
	})

	t.Run("churn risk bounds", func(t *testing.T) {
		t.Parallel()

		sub := activeSubscription(uuid.New())
		sub.ChurnRisk = 1.5
		assert.ErrorIs(t, sub.Validate(), subscription.ErrInvalidChurnRisk)
	})
}

func TestSubscription_CancellationLock(t *testing.T) {
	t.Parallel()

	sub := activeSubscription(uuid.New())
	require.True(t, sub.CanCancel())

	now := time.Now().UTC()
	sub.LockCancellation("emergency service already used this cycle", now)
	assert.False(t, sub.CanCancel())
	assert.NotEmpty(t, sub.CancellationBlockedReason)
	require.NotNil(t, sub.CancellationLockedAt)

	// A second lock attempt must not overwrite the original reason.
	sub.LockCancellation("another reason", now.Add(time.Hour))
	assert.Equal(t, "emergency service already used this cycle", sub.CancellationBlockedReason)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("save and lookup by all keys", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		sub := activeSubscription(uuid.New())
		sub.GatewayCustomerID = "ctm_123"
		sub.GatewaySubscriptionID = "sub_123"
		require.NoError(t, store.Save(ctx, sub))

		bySubscriber, err := store.GetBySubscriberID(ctx, sub.SubscriberID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID, bySubscriber.ID)

		byGatewaySub, err := store.GetByGatewaySubscriptionID(ctx, "sub_123")
		require.NoError(t, err)
		assert.Equal(t, sub.ID, byGatewaySub.ID)

		byGatewayCustomer, err := store.GetByGatewayCustomerID(ctx, "ctm_123")
		require.NoError(t, err)
		assert.Equal(t, sub.ID, byGatewayCustomer.ID)
	})

	t.Run("one subscription per subscriber", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		subscriberID := uuid.New()
		require.NoError(t, store.Save(ctx, activeSubscription(subscriberID)))

		err := store.Save(ctx, activeSubscription(subscriberID))
		assert.ErrorIs(t, err, subscription.ErrSubscriptionExists)
	})

	t.Run("missing lookups", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		_, err := store.GetBySubscriberID(ctx, uuid.New())
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

		_, err = store.GetByGatewaySubscriptionID(ctx, "")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("sweep candidate filtering is mutually exclusive", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		now := time.Now().UTC()

		pastDue := activeSubscription(uuid.New())
		pastDue.Status = subscription.StatusPastDue
		pastDue.OpenPauseWindow(now.AddDate(0, 0, -10), now.AddDate(0, 0, -3))
		require.NoError(t, store.Save(ctx, pastDue))

		manual := activeSubscription(uuid.New())
		manual.OpenPauseWindow(now.AddDate(0, -2, 0), now.AddDate(0, -1, 0))
		require.NoError(t, store.Save(ctx, manual))

		stillPaused := activeSubscription(uuid.New())
		stillPaused.OpenPauseWindow(now, now.AddDate(0, 1, 0))
		require.NoError(t, store.Save(ctx, stillPaused))

		graceExpired, err := store.ListGraceExpired(ctx, now)
		require.NoError(t, err)
		require.Len(t, graceExpired, 1)
		assert.Equal(t, pastDue.ID, graceExpired[0].ID)

		resumable, err := store.ListAutoResumable(ctx, now)
		require.NoError(t, err)
		require.Len(t, resumable, 1)
		assert.Equal(t, manual.ID, resumable[0].ID)
	})
}

func TestMemoryPauseStore_SingleActiveRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryPauseStore()
	subID := uuid.New()
	now := time.Now().UTC()

	first := &subscription.PauseRecord{
		SubscriptionID: subID,
		Reason:         subscription.PauseReasonManual,
		StartDate:      now,
		ScheduledEnd:   now.AddDate(0, 1, 0),
		Status:         subscription.PauseStatusActive,
	}
	require.NoError(t, store.Save(ctx, first))

	second := &subscription.PauseRecord{
		SubscriptionID: subID,
		Reason:         subscription.PauseReasonPaymentFailed,
		StartDate:      now,
		ScheduledEnd:   now.AddDate(0, 0, 7),
		Status:         subscription.PauseStatusActive,
	}
	assert.ErrorIs(t, store.Save(ctx, second), subscription.ErrActivePauseExists)

	// Completing the first pause frees the slot.
	first.Complete(now.Add(time.Hour))
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	history, err := store.ListBySubscription(ctx, subID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPerkUsage(t *testing.T) {
	t.Parallel()

	catalog := plan.Default()
	priority, err := catalog.Get(plan.TierPriority)
	require.NoError(t, err)

	t.Run("quotas derive from plan at creation", func(t *testing.T) {
		t.Parallel()

		usage := subscription.NewPerkUsage(uuid.New(), priority, time.Now().UTC(), 1)
		assert.Equal(t, 3, usage.VisitAllowance, "2 included visits plus 1 carryover")
		assert.Equal(t, int64(1), usage.Remaining(plan.PerkEmergencyService))
		assert.False(t, usage.AnyConsumed())
	})

	t.Run("counters are monotonic and capped", func(t *testing.T) {
		t.Parallel()

		usage := subscription.NewPerkUsage(uuid.New(), priority, time.Now().UTC(), 0)
		require.NoError(t, usage.Consume(plan.PerkEmergencyService, 1))
		assert.True(t, usage.AnyConsumed())
		assert.Equal(t, []plan.Perk{plan.PerkEmergencyService}, usage.ConsumedPerks())

		err := usage.Consume(plan.PerkEmergencyService, 1)
		assert.ErrorIs(t, err, subscription.ErrPerkQuotaExceeded)

		err = usage.Consume(plan.PerkPriorityBooking, 0)
		assert.ErrorIs(t, err, subscription.ErrInvalidPerkAmount)

		err = usage.Consume(plan.PerkPriorityBooking, -2)
		assert.ErrorIs(t, err, subscription.ErrInvalidPerkAmount)
	})

	t.Run("ungranted perk has zero remaining", func(t *testing.T) {
		t.Parallel()

		starter, err := catalog.Get(plan.TierStarter)
		require.NoError(t, err)

		usage := subscription.NewPerkUsage(uuid.New(), starter, time.Now().UTC(), 0)
		assert.Zero(t, usage.Remaining(plan.PerkEmergencyService))
		assert.ErrorIs(t, usage.Consume(plan.PerkEmergencyService, 1), subscription.ErrPerkQuotaExceeded)
	})
}
