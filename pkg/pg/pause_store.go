package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwellcare/billing/pkg/subscription"
)

// PauseStore is the PostgreSQL implementation of subscription.PauseStore.
// A partial unique index on active records enforces the one-open-pause
// invariant at the database level.
type PauseStore struct {
	pool *pgxpool.Pool
}

var _ subscription.PauseStore = (*PauseStore)(nil)

// NewPauseStore creates a Postgres-backed pause history store.
// Panics if pool is nil, failing fast on miswired dependencies.
func NewPauseStore(pool *pgxpool.Pool) *PauseStore {
	if pool == nil {
		panic("pg: pause store requires a non-nil pool")
	}
	return &PauseStore{pool: pool}
}

const pauseColumns = `id, subscription_id, reason, start_date, scheduled_end, end_date, status, created_at`

func (s *PauseStore) GetActive(ctx context.Context, subscriptionID uuid.UUID) (*subscription.PauseRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pauseColumns+` FROM pause_records
		WHERE subscription_id = $1 AND status = $2`,
		subscriptionID, string(subscription.PauseStatusActive))
	if err != nil {
		return nil, err
	}
	rec, err := pgx.CollectOneRow(rows, scanPauseRecord)
	if IsNotFoundError(err) {
		return nil, subscription.ErrPauseRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PauseStore) Save(ctx context.Context, rec *subscription.PauseRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pause_records (`+pauseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			scheduled_end = EXCLUDED.scheduled_end,
			end_date = EXCLUDED.end_date,
			status = EXCLUDED.status`,
		rec.ID, rec.SubscriptionID, string(rec.Reason),
		rec.StartDate, rec.ScheduledEnd, rec.EndDate, string(rec.Status), rec.CreatedAt,
	)
	if IsDuplicateKeyError(err) {
		return subscription.ErrActivePauseExists
	}
	return err
}

func (s *PauseStore) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*subscription.PauseRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pauseColumns+` FROM pause_records
		WHERE subscription_id = $1
		ORDER BY start_date DESC`,
		subscriptionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPauseRecord)
}

func scanPauseRecord(row pgx.CollectableRow) (*subscription.PauseRecord, error) {
	var (
		rec    subscription.PauseRecord
		reason string
		status string
	)
	err := row.Scan(
		&rec.ID, &rec.SubscriptionID, &reason,
		&rec.StartDate, &rec.ScheduledEnd, &rec.EndDate, &status, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Reason = subscription.PauseReason(reason)
	rec.Status = subscription.PauseStatus(status)
	return &rec, nil
}
