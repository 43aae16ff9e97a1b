package proration

import (
	"math"
	"time"

	"github.com/dwellcare/billing/pkg/plan"
)

// Input describes a mid-cycle price change to prorate.
type Input struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	OldPrice    plan.Money // current tier's price for the chosen billing period
	NewPrice    plan.Money // target tier's price for the same billing period
	Now         time.Time
}

// Result is the outcome of a proration calculation. Exactly one of
// ImmediateCharge and CreditAmount is non-zero for any real price change:
// upgrades charge the difference now, downgrades credit it at the next cycle.
type Result struct {
	TotalDays          int
	RemainingDays      int
	ProratedDifference int64      // signed, in cents; positive means charge now
	ImmediateCharge    plan.Money // charged immediately when upgrading
	CreditAmount       plan.Money // applied at the next cycle when downgrading
	NextAmount         plan.Money // full new price for the following cycle
}

// Calculate computes the billing delta for a mid-cycle price change, pro-rata
// over the remaining days of the current period. Pure function, no side
// effects.
//
// Days are counted with ceiling semantics so a partial final day still counts
// as a remaining day. When now is already past the period end the remaining
// days clamp to zero and the result carries no charge or credit.
func Calculate(in Input) (Result, error) {
	if !in.PeriodEnd.After(in.PeriodStart) {
		return Result{}, ErrEmptyPeriod
	}
	if in.OldPrice.Currency != in.NewPrice.Currency {
		return Result{}, ErrCurrencyMismatch
	}

	totalDays := ceilDays(in.PeriodEnd.Sub(in.PeriodStart))
	if totalDays <= 0 {
		// Guard against same-day periods produced by clock skew.
		return Result{}, ErrEmptyPeriod
	}

	remainingDays := ceilDays(in.PeriodEnd.Sub(in.Now))
	if remainingDays < 0 {
		remainingDays = 0
	}
	if remainingDays > totalDays {
		remainingDays = totalDays
	}

	dailyOld := float64(in.OldPrice.Amount) / float64(totalDays)
	dailyNew := float64(in.NewPrice.Amount) / float64(totalDays)
	difference := int64(math.Round((dailyNew - dailyOld) * float64(remainingDays)))

	result := Result{
		TotalDays:          totalDays,
		RemainingDays:      remainingDays,
		ProratedDifference: difference,
		NextAmount:         in.NewPrice,
	}

	currency := in.NewPrice.Currency
	switch {
	case difference > 0:
		result.ImmediateCharge = plan.Money{Amount: difference, Currency: currency}
		result.CreditAmount = plan.Money{Amount: 0, Currency: currency}
	case difference < 0:
		result.ImmediateCharge = plan.Money{Amount: 0, Currency: currency}
		result.CreditAmount = plan.Money{Amount: -difference, Currency: currency}
	default:
		result.ImmediateCharge = plan.Money{Amount: 0, Currency: currency}
		result.CreditAmount = plan.Money{Amount: 0, Currency: currency}
	}

	return result, nil
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}
