package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/plan"
)

// Subscription represents one subscriber's billing relationship.
// Each subscriber has exactly one subscription record; SubscriberID is
// unique. The record is mutated by the plan-change orchestrator, the
// pause/resume manager, and the webhook reconciler, and those paths are
// serialized per subscription at the persistence boundary.
type Subscription struct {
	ID           uuid.UUID
	SubscriberID uuid.UUID // unique per subscriber

	// Email is the subscriber's notification address, captured at signup
	// or recovered from the gateway customer during reconciliation.
	Email string

	Tier          plan.Tier
	Status        Status
	BillingPeriod plan.BillingPeriod
	PeriodStart   time.Time
	PeriodEnd     time.Time
	NextAmount    plan.Money

	// PendingTier records a downgrade scheduled to take effect at period
	// end while Status is StatusPendingChange.
	PendingTier *plan.Tier

	// Pause window. IsPaused is true iff an unresolved pause window exists.
	IsPaused   bool
	PauseStart *time.Time
	PauseEnd   *time.Time

	// Cancellation lock, set on first perk consumption in a cycle and
	// never cleared automatically.
	CancellationLocked        bool
	CancellationBlockedReason string
	CancellationLockedAt      *time.Time

	// References into the external payment gateway; empty until the first
	// payment setup completes.
	GatewayCustomerID     string
	GatewaySubscriptionID string

	// CarryoverVisits holds visit credits earned by a tier change, applied
	// to the allowance at the next renewal and then cleared.
	CarryoverVisits int

	ChurnRisk float64 // 0..1

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanCancel reports whether self-service cancellation is still available.
func (s *Subscription) CanCancel() bool {
	return !s.CancellationLocked
}

// LockCancellation permanently blocks self-service cancellation with the
// given reason. The lock never re-enables automatically.
func (s *Subscription) LockCancellation(reason string, now time.Time) {
	if s.CancellationLocked {
		return
	}
	s.CancellationLocked = true
	s.CancellationBlockedReason = reason
	s.CancellationLockedAt = &now
}

// OpenPauseWindow marks the subscription paused for the given window.
func (s *Subscription) OpenPauseWindow(start, end time.Time) {
	s.IsPaused = true
	s.PauseStart = &start
	s.PauseEnd = &end
}

// ClosePauseWindow clears the pause flag and window.
func (s *Subscription) ClosePauseWindow() {
	s.IsPaused = false
	s.PauseStart = nil
	s.PauseEnd = nil
}

// PauseWindowElapsed reports whether the pause window has ended as of now.
func (s *Subscription) PauseWindowElapsed(now time.Time) bool {
	return s.IsPaused && s.PauseEnd != nil && !now.Before(*s.PauseEnd)
}

// Validate checks the record's internal invariants. It exists so stores can
// refuse to persist an inconsistent record regardless of which mutation path
// produced it.
func (s *Subscription) Validate() error {
	if s.SubscriberID == uuid.Nil {
		return ErrMissingSubscriberID
	}
	if !s.Tier.Valid() {
		return ErrInvalidTier
	}
	if s.IsPaused && (s.PauseStart == nil || s.PauseEnd == nil) {
		return ErrInconsistentPauseState
	}
	if !s.IsPaused && (s.PauseStart != nil || s.PauseEnd != nil) {
		return ErrInconsistentPauseState
	}
	if s.Status == StatusCancelled && s.IsPaused {
		return ErrInconsistentPauseState
	}
	if s.CancellationLocked && s.CancellationBlockedReason == "" {
		return ErrMissingCancellationReason
	}
	if s.ChurnRisk < 0 || s.ChurnRisk > 1 {
		return ErrInvalidChurnRisk
	}
	return nil
}
