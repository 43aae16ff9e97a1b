package pause

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/notify"
	"github.com/dwellcare/billing/pkg/subscription"
)

// SweepError captures one failed item of a batch sweep.
type SweepError struct {
	SubscriberID uuid.UUID
	Err          error
}

// SweepResult aggregates one batch sweep run. A sweep never aborts on a
// single bad record: failures are captured per item and the rest of the
// candidate set is still processed.
type SweepResult struct {
	Candidates int
	Processed  int
	Skipped    int
	Errors     []SweepError
}

// ProcessGracePeriodExpirations suspends past-due subscriptions whose grace
// window elapsed without a successful payment. Meant to be invoked
// periodically by the scheduler.
//
// Each candidate is re-read and re-checked under its subscriber lock, so a
// payment that recovers between listing and processing, or a second sweep run
// racing this one, skips the record instead of suspending it twice.
func (m *Manager) ProcessGracePeriodExpirations(ctx context.Context) (*SweepResult, error) {
	now := m.now()
	candidates, err := m.subs.ListGraceExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Candidates: len(candidates)}
	for _, candidate := range candidates {
		suspended, err := m.expireOne(ctx, candidate.SubscriberID)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, SweepError{SubscriberID: candidate.SubscriberID, Err: err})
			m.logger.LogAttrs(ctx, slog.LevelError, "grace period expiration failed",
				slog.String("subscriber_id", candidate.SubscriberID.String()),
				slog.String("error", err.Error()),
			)
		case suspended:
			result.Processed++
		default:
			result.Skipped++
		}
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "grace period sweep finished",
		slog.Int("candidates", result.Candidates),
		slog.Int("suspended", result.Processed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// ProcessAutomaticResumes resumes paused subscriptions whose window elapsed.
// Past-due pauses are excluded at the store level: those belong to the
// grace-period sweep, and the two sweeps must never touch the same record.
func (m *Manager) ProcessAutomaticResumes(ctx context.Context) (*SweepResult, error) {
	now := m.now()
	candidates, err := m.subs.ListAutoResumable(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Candidates: len(candidates)}
	for _, candidate := range candidates {
		resumed, err := m.resumeOne(ctx, candidate.SubscriberID)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, SweepError{SubscriberID: candidate.SubscriberID, Err: err})
			m.logger.LogAttrs(ctx, slog.LevelError, "automatic resume failed",
				slog.String("subscriber_id", candidate.SubscriberID.String()),
				slog.String("error", err.Error()),
			)
		case resumed:
			result.Processed++
		default:
			result.Skipped++
		}
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "automatic resume sweep finished",
		slog.Int("candidates", result.Candidates),
		slog.Int("resumed", result.Processed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", len(result.Errors)),
	)
	return result, nil
}

func (m *Manager) expireOne(ctx context.Context, subscriberID uuid.UUID) (bool, error) {
	var suspended *subscription.Subscription

	err := m.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := m.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if sub.Status != subscription.StatusPastDue || !sub.PauseWindowElapsed(m.now()) {
			return nil
		}

		now := m.now()
		record, err := m.pauses.GetActive(ctx, sub.ID)
		if err == nil {
			record.Complete(now)
			if err := m.pauses.Save(ctx, record); err != nil {
				return err
			}
		}

		sub.ClosePauseWindow()
		if err := sub.Transition(subscription.StatusSuspended); err != nil {
			return err
		}
		if err := m.subs.Save(ctx, sub); err != nil {
			return err
		}
		suspended = sub
		return nil
	})
	if err != nil || suspended == nil {
		return false, err
	}

	m.send(ctx, suspended, notify.KindSubscriptionSuspended,
		"Your subscription is suspended",
		"We could not collect payment during the grace period. Update your payment method to restore service.",
	)
	return true, nil
}

func (m *Manager) resumeOne(ctx context.Context, subscriberID uuid.UUID) (bool, error) {
	var resumed *Result

	err := m.locker.WithSubscriberLock(ctx, subscriberID, func(ctx context.Context) error {
		sub, err := m.subs.GetBySubscriberID(ctx, subscriberID)
		if err != nil {
			return err
		}
		if !sub.IsPaused || sub.Status == subscription.StatusPastDue || !sub.PauseWindowElapsed(m.now()) {
			return nil
		}
		resumed, err = m.resumeLocked(ctx, sub)
		return err
	})
	if err != nil || resumed == nil {
		return false, err
	}

	m.send(ctx, resumed.Subscription, notify.KindResumeConfirmed,
		"Your subscription has resumed",
		"The pause you scheduled has ended and service is back on.",
	)
	return true, nil
}
