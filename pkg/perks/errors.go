package perks

import "errors"

var (
	ErrSubscriptionInactive = errors.New("subscription is not active for perk usage")
	ErrNoVisitsRemaining    = errors.New("no visits remaining in current cycle")
)
