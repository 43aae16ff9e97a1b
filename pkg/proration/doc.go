// Package proration provides the pure billing math for mid-cycle plan
// changes: day-granular price proration and unused visit-credit carryover.
//
// Both calculators are side-effect free. Calculate prorates the price
// difference over the remaining days of the current billing period; a
// positive difference is an immediate charge (upgrade), a negative one
// becomes a credit applied at the next cycle (downgrade). CalculateCarryover
// transfers unused visit credits across a tier change, hard-capped at
// MaxCarryoverVisits.
package proration
