package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwellcare/billing/pkg/plan"
	"github.com/dwellcare/billing/pkg/subscription"
)

// PerkUsageStore is the PostgreSQL implementation of
// subscription.PerkUsageStore. One row per subscriber holds the current
// cycle; the renewal job replaces it wholesale at the cycle boundary.
// Per-perk counters and quotas live in jsonb columns.
type PerkUsageStore struct {
	pool *pgxpool.Pool
}

var _ subscription.PerkUsageStore = (*PerkUsageStore)(nil)

// NewPerkUsageStore creates a Postgres-backed perk usage store.
// Panics if pool is nil, failing fast on miswired dependencies.
func NewPerkUsageStore(pool *pgxpool.Pool) *PerkUsageStore {
	if pool == nil {
		panic("pg: perk usage store requires a non-nil pool")
	}
	return &PerkUsageStore{pool: pool}
}

func (s *PerkUsageStore) GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) (*subscription.PerkUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subscriber_id, tier, cycle_start,
			visits_used, visit_allowance, used, quotas, created_at, updated_at
		FROM perk_usage WHERE subscriber_id = $1`,
		subscriberID)
	if err != nil {
		return nil, err
	}
	usage, err := pgx.CollectOneRow(rows, scanPerkUsage)
	if IsNotFoundError(err) {
		return nil, subscription.ErrPerkUsageNotFound
	}
	if err != nil {
		return nil, err
	}
	return usage, nil
}

func (s *PerkUsageStore) Save(ctx context.Context, usage *subscription.PerkUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	usage.UpdatedAt = time.Now().UTC()

	used, err := json.Marshal(usage.Used)
	if err != nil {
		return errors.Join(errors.New("failed to encode perk counters"), err)
	}
	quotas, err := json.Marshal(usage.Quotas)
	if err != nil {
		return errors.Join(errors.New("failed to encode perk quotas"), err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO perk_usage (id, subscriber_id, tier, cycle_start,
			visits_used, visit_allowance, used, quotas, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subscriber_id) DO UPDATE SET
			id = EXCLUDED.id,
			tier = EXCLUDED.tier,
			cycle_start = EXCLUDED.cycle_start,
			visits_used = EXCLUDED.visits_used,
			visit_allowance = EXCLUDED.visit_allowance,
			used = EXCLUDED.used,
			quotas = EXCLUDED.quotas,
			updated_at = EXCLUDED.updated_at`,
		usage.ID, usage.SubscriberID, string(usage.Tier), usage.CycleStart,
		usage.VisitsUsed, usage.VisitAllowance, used, quotas, usage.CreatedAt, usage.UpdatedAt,
	)
	return err
}

func scanPerkUsage(row pgx.CollectableRow) (*subscription.PerkUsage, error) {
	var (
		usage  subscription.PerkUsage
		tier   string
		used   []byte
		quotas []byte
	)
	err := row.Scan(
		&usage.ID, &usage.SubscriberID, &tier, &usage.CycleStart,
		&usage.VisitsUsed, &usage.VisitAllowance, &used, &quotas,
		&usage.CreatedAt, &usage.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	usage.Tier = plan.Tier(tier)
	usage.Used = make(map[plan.Perk]int64)
	if err := json.Unmarshal(used, &usage.Used); err != nil {
		return nil, errors.Join(errors.New("failed to decode perk counters"), err)
	}
	usage.Quotas = make(map[plan.Perk]int64)
	if err := json.Unmarshal(quotas, &usage.Quotas); err != nil {
		return nil, errors.Join(errors.New("failed to decode perk quotas"), err)
	}
	return &usage, nil
}
