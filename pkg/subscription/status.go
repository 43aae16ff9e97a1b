package subscription

import "fmt"

// Status represents the lifecycle state of a subscription. Pausing is not a
// status of its own: a paused subscription keeps its status and carries the
// IsPaused flag with a pause window.
type Status string

const (
	StatusActive        Status = "active"
	StatusPastDue       Status = "past_due"
	StatusPendingChange Status = "pending_change"
	StatusSuspended     Status = "suspended"
	StatusCancelled     Status = "cancelled"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusPendingChange, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// allowedTransitions is the lifecycle transition table. A missing entry means
// the transition is rejected. StatusCancelled is terminal; StatusSuspended
// only leaves via manual intervention back to active (or cancellation).
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusActive: {
		StatusPastDue:       {},
		StatusPendingChange: {},
		StatusCancelled:     {},
	},
	StatusPastDue: {
		StatusActive:    {},
		StatusSuspended: {},
		StatusCancelled: {},
	},
	StatusPendingChange: {
		StatusActive:    {},
		StatusPastDue:   {},
		StatusCancelled: {},
	},
	StatusSuspended: {
		StatusActive:    {},
		StatusCancelled: {},
	},
	StatusCancelled: {},
}

// CanTransition reports whether the lifecycle allows moving between the two
// statuses. Same-status "transitions" are allowed as no-ops.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Transition moves the subscription to a new status, enforcing the lifecycle
// table. Every status mutation in the billing core goes through here so an
// illegal transition surfaces as an error instead of silently corrupting the
// record.
func (s *Subscription) Transition(to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	return nil
}
