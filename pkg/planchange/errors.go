package planchange

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dwellcare/billing/pkg/plan"
)

var (
	// ErrSameTier is returned when the requested tier equals the current one.
	// The request is a no-op and nothing is charged or persisted.
	ErrSameTier = errors.New("subscription is already on the requested tier")

	// ErrNotActive is returned when the subscription's status does not allow
	// a plan change (only active subscriptions may change tiers).
	ErrNotActive = errors.New("subscription is not active")
)

// DowngradeBlockedError reports a downgrade rejected because the subscriber
// already consumed perks this cycle that the target tier does not grant.
// The blocking perks are listed so callers can tell the subscriber exactly
// which benefits stand in the way and when to retry.
type DowngradeBlockedError struct {
	Perks []plan.Perk
}

func (e *DowngradeBlockedError) Error() string {
	return "downgrade blocked: " + strings.Join(e.Reasons(), "; ")
}

// Reasons returns one human-readable sentence per blocking perk.
func (e *DowngradeBlockedError) Reasons() []string {
	reasons := make([]string, 0, len(e.Perks))
	for _, perk := range e.Perks {
		reasons = append(reasons, fmt.Sprintf("%s benefit already used this billing cycle", perk.Label()))
	}
	return reasons
}
