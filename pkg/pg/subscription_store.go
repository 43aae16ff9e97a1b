package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/subscription"
)

// SubscriptionStore is the PostgreSQL implementation of subscription.Store.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

var _ subscription.Store = (*SubscriptionStore)(nil)

// NewSubscriptionStore creates a Postgres-backed subscription store.
// Panics if pool is nil, failing fast on miswired dependencies.
func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	if pool == nil {
		panic("pg: subscription store requires a non-nil pool")
	}
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = `id, subscriber_id, email, tier, status, billing_period,
	period_start, period_end, next_amount, next_currency, pending_tier,
	is_paused, pause_start, pause_end,
	cancellation_locked, cancellation_blocked_reason, cancellation_locked_at,
	gateway_customer_id, gateway_subscription_id,
	carryover_visits, churn_risk, created_at, updated_at`

func (s *SubscriptionStore) GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) (*subscription.Subscription, error) {
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscriber_id = $1`, subscriberID)
}

func (s *SubscriptionStore) GetByGatewaySubscriptionID(ctx context.Context, gatewaySubID string) (*subscription.Subscription, error) {
	if gatewaySubID == "" {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE gateway_subscription_id = $1`, gatewaySubID)
}

func (s *SubscriptionStore) GetByGatewayCustomerID(ctx context.Context, gatewayCustomerID string) (*subscription.Subscription, error) {
	if gatewayCustomerID == "" {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE gateway_customer_id = $1`, gatewayCustomerID)
}

func (s *SubscriptionStore) getOne(ctx context.Context, query string, arg any) (*subscription.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	sub, err := pgx.CollectOneRow(rows, scanSubscription)
	if IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Save upserts the subscription keyed on subscriber identity. A conflicting
// row whose id differs means a second subscription for the same subscriber,
// which is rejected with ErrSubscriptionExists.
func (s *SubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.UpdatedAt = time.Now().UTC()

	var pendingTier *string
	if sub.PendingTier != nil {
		v := string(*sub.PendingTier)
		pendingTier = &v
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (subscriber_id) DO UPDATE SET
			email = EXCLUDED.email,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			billing_period = EXCLUDED.billing_period,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			next_amount = EXCLUDED.next_amount,
			next_currency = EXCLUDED.next_currency,
			pending_tier = EXCLUDED.pending_tier,
			is_paused = EXCLUDED.is_paused,
			pause_start = EXCLUDED.pause_start,
			pause_end = EXCLUDED.pause_end,
			cancellation_locked = EXCLUDED.cancellation_locked,
			cancellation_blocked_reason = EXCLUDED.cancellation_blocked_reason,
			cancellation_locked_at = EXCLUDED.cancellation_locked_at,
			gateway_customer_id = EXCLUDED.gateway_customer_id,
			gateway_subscription_id = EXCLUDED.gateway_subscription_id,
			carryover_visits = EXCLUDED.carryover_visits,
			churn_risk = EXCLUDED.churn_risk,
			updated_at = EXCLUDED.updated_at
		WHERE subscriptions.id = EXCLUDED.id`,
		sub.ID, sub.SubscriberID, sub.Email, string(sub.Tier), string(sub.Status), string(sub.BillingPeriod),
		sub.PeriodStart, sub.PeriodEnd, sub.NextAmount.Amount, sub.NextAmount.Currency, pendingTier,
		sub.IsPaused, sub.PauseStart, sub.PauseEnd,
		sub.CancellationLocked, sub.CancellationBlockedReason, sub.CancellationLockedAt,
		sub.GatewayCustomerID, sub.GatewaySubscriptionID,
		sub.CarryoverVisits, sub.ChurnRisk, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionExists
	}
	return nil
}

func (s *SubscriptionStore) ListGraceExpired(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = $1 AND is_paused AND pause_end <= $2
		ORDER BY created_at`,
		string(subscription.StatusPastDue), now)
}

func (s *SubscriptionStore) ListAutoResumable(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	// Past-due pauses belong to the grace-period sweep, never here.
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status <> $1 AND is_paused AND pause_end <= $2
		ORDER BY created_at`,
		string(subscription.StatusPastDue), now)
}

func (s *SubscriptionStore) ListRenewalsDue(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = ANY($1) AND period_end <= $2
		ORDER BY created_at`,
		[]string{string(subscription.StatusActive), string(subscription.StatusPendingChange)}, now)
}

func (s *SubscriptionStore) list(ctx context.Context, query string, args ...any) ([]*subscription.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSubscription)
}

func scanSubscription(row pgx.CollectableRow) (*subscription.Subscription, error) {
	var (
		sub          subscription.Subscription
		tier         string
		status       string
		period       string
		nextAmount   int64
		nextCurrency string
		pendingTier  *string
	)
	err := row.Scan(
		&sub.ID, &sub.SubscriberID, &sub.Email, &tier, &status, &period,
		&sub.PeriodStart, &sub.PeriodEnd, &nextAmount, &nextCurrency, &pendingTier,
		&sub.IsPaused, &sub.PauseStart, &sub.PauseEnd,
		&sub.CancellationLocked, &sub.CancellationBlockedReason, &sub.CancellationLockedAt,
		&sub.GatewayCustomerID, &sub.GatewaySubscriptionID,
		&sub.CarryoverVisits, &sub.ChurnRisk, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Tier = plan.Tier(tier)
	sub.Status = subscription.Status(status)
	sub.BillingPeriod = plan.BillingPeriod(period)
	sub.NextAmount = plan.Money{Amount: nextAmount, Currency: nextCurrency}
	if pendingTier != nil {
		t := plan.Tier(*pendingTier)
		sub.PendingTier = &t
	}
	return &sub, nil
}
