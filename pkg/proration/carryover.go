package proration

// MaxCarryoverVisits caps how many unused visit credits transfer across a
// tier change, regardless of plan.
const MaxCarryoverVisits = 2

// CarryoverResult describes how many unused periodic visit credits transfer
// to the next period after a tier change.
type CarryoverResult struct {
	UnusedVisits          int
	CarryoverVisits       int // capped at MaxCarryoverVisits
	TotalVisitsNextPeriod int
}

// CalculateCarryover computes the visit-credit carryover for a tier change.
// Unused visits from the old tier transfer up to the hard cap; the next
// period's total allowance is the new tier's allowance plus the carryover.
// Negative used counts are treated as zero. Pure function; durably applying
// the carryover to the subscriber's allowance is the caller's job.
func CalculateCarryover(oldVisitsPerMonth, newVisitsPerMonth, usedVisits int) CarryoverResult {
	if usedVisits < 0 {
		usedVisits = 0
	}

	unused := oldVisitsPerMonth - usedVisits
	if unused < 0 {
		unused = 0
	}

	carryover := unused
	if carryover > MaxCarryoverVisits {
		carryover = MaxCarryoverVisits
	}

	return CarryoverResult{
		UnusedVisits:          unused,
		CarryoverVisits:       carryover,
		TotalVisitsNextPeriod: newVisitsPerMonth + carryover,
	}
}
