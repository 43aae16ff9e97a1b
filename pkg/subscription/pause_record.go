package subscription

import (
	"time"

	"github.com/google/uuid"
)

// PauseReason distinguishes voluntary pauses from involuntary ones.
type PauseReason string

const (
	PauseReasonManual        PauseReason = "manual_pause"
	PauseReasonPaymentFailed PauseReason = "payment_failed"
)

// PauseStatus is the lifecycle state of a pause episode.
type PauseStatus string

const (
	PauseStatusActive    PauseStatus = "active"
	PauseStatusCompleted PauseStatus = "completed"
)

// PauseRecord captures one pause episode. Records are append-only history:
// an active record is completed on resume and immutable thereafter. At most
// one active record may exist per subscription at any time; stores enforce
// this.
type PauseRecord struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	Reason         PauseReason
	StartDate      time.Time
	ScheduledEnd   time.Time  // planned end of the pause window
	EndDate        *time.Time // nil while the pause is open
	Status         PauseStatus
	CreatedAt      time.Time
}

// Complete closes the pause episode at the given time. Completing an
// already-completed record is a no-op so replays stay harmless.
func (r *PauseRecord) Complete(now time.Time) {
	if r.Status == PauseStatusCompleted {
		return
	}
	r.Status = PauseStatusCompleted
	r.EndDate = &now
}
