package pg

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwellcare/billing/pkg/subscription"
)

// AdvisoryLocker implements subscription.Locker with PostgreSQL
// transaction-scoped advisory locks. The lock key is derived from the
// subscriber id, so competing mutations for the same subscriber queue on
// the database while different subscribers proceed in parallel. The lock
// releases when the wrapping transaction commits or rolls back, including
// on connection loss.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

var _ subscription.Locker = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker creates a Postgres-backed per-subscriber locker.
// Panics if pool is nil, failing fast on miswired dependencies.
func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	if pool == nil {
		panic("pg: advisory locker requires a non-nil pool")
	}
	return &AdvisoryLocker{pool: pool}
}

func (l *AdvisoryLocker) WithSubscriberLock(ctx context.Context, subscriberID uuid.UUID, fn func(ctx context.Context) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, subscriberID.String()); err != nil {
		return errors.Join(errors.New("failed to acquire subscriber lock"), err)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
