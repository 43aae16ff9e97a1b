package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/plan"
)

// PerkUsage is the per-subscriber consumption record for the current billing
// cycle. Counters only ever grow within a cycle; the renewal job replaces the
// record with a fresh one at the cycle boundary. Quotas are copied from the
// tier's plan at creation time so a later tier change does not retroactively
// alter what was allowed in the running cycle.
type PerkUsage struct {
	ID           uuid.UUID
	SubscriberID uuid.UUID
	Tier         plan.Tier
	CycleStart   time.Time

	VisitsUsed     int
	VisitAllowance int // includes any carryover applied at renewal

	Used   map[plan.Perk]int64 // consumed per perk; cents for the discount perk
	Quotas map[plan.Perk]int64 // per-cycle maxima derived from tier at creation

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPerkUsage creates a fresh usage record for a cycle, deriving quotas and
// the visit allowance from the plan. carryoverVisits extends the allowance
// for exactly this cycle.
func NewPerkUsage(subscriberID uuid.UUID, p plan.Plan, cycleStart time.Time, carryoverVisits int) *PerkUsage {
	quotas := make(map[plan.Perk]int64, len(p.PerkQuotas))
	for perk, quota := range p.PerkQuotas {
		quotas[perk] = quota
	}
	now := time.Now().UTC()
	return &PerkUsage{
		ID:             uuid.New(),
		SubscriberID:   subscriberID,
		Tier:           p.Tier,
		CycleStart:     cycleStart,
		VisitAllowance: p.VisitsPerMonth + carryoverVisits,
		Used:           make(map[plan.Perk]int64),
		Quotas:         quotas,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// UsedOf returns how much of a perk has been consumed this cycle.
func (u *PerkUsage) UsedOf(perk plan.Perk) int64 {
	return u.Used[perk]
}

// Remaining returns the unconsumed quota for a perk. Perks the tier does not
// grant have zero remaining.
func (u *PerkUsage) Remaining(perk plan.Perk) int64 {
	quota, ok := u.Quotas[perk]
	if !ok {
		return 0
	}
	remaining := quota - u.Used[perk]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AnyConsumed reports whether any perk has been consumed this cycle. The
// first consumption is what triggers the subscription's cancellation lock.
func (u *PerkUsage) AnyConsumed() bool {
	for _, used := range u.Used {
		if used > 0 {
			return true
		}
	}
	return false
}

// ConsumedPerks returns the perks with non-zero consumption this cycle, in a
// stable order.
func (u *PerkUsage) ConsumedPerks() []plan.Perk {
	var consumed []plan.Perk
	for _, perk := range []plan.Perk{
		plan.PerkPriorityBooking,
		plan.PerkDiscount,
		plan.PerkFreeService,
		plan.PerkEmergencyService,
	} {
		if u.Used[perk] > 0 {
			consumed = append(consumed, perk)
		}
	}
	return consumed
}

// Consume adds to a perk counter. Counters are monotonic: amounts must be
// positive and must not exceed the remaining quota.
func (u *PerkUsage) Consume(perk plan.Perk, amount int64) error {
	if amount <= 0 {
		return ErrInvalidPerkAmount
	}
	if u.Remaining(perk) < amount {
		return ErrPerkQuotaExceeded
	}
	u.Used[perk] += amount
	u.UpdatedAt = time.Now().UTC()
	return nil
}
