package pause

import "errors"

var (
	// ErrAlreadyPaused rejects a manual pause while a pause window is open.
	// Payment-failure pauses no-op instead of erroring; see
	// PauseForPaymentFailure.
	ErrAlreadyPaused = errors.New("subscription is already paused")

	// ErrNotPaused rejects a resume when no pause window is open.
	ErrNotPaused = errors.New("subscription is not paused")

	// ErrNotActive rejects a manual pause for a subscription whose status is
	// not active.
	ErrNotActive = errors.New("subscription is not active")

	// ErrInvalidDuration rejects a manual pause outside the allowed 1 to 6
	// month window.
	ErrInvalidDuration = errors.New("pause duration must be between 1 and 6 months")

	// ErrUpcomingAppointment rejects a manual pause while a technician visit
	// is still scheduled; the appointment must be rescheduled first.
	ErrUpcomingAppointment = errors.New("an upcoming appointment must be rescheduled before pausing")
)
