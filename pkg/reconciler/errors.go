package reconciler

import "errors"

var (
	// ErrUnresolvedEvent marks a gateway event whose owning subscriber could
	// not be determined by any rung of the resolution chain. The event is
	// logged as a data-integrity alarm and dropped, not retried: redelivery
	// would fail the same way.
	ErrUnresolvedEvent = errors.New("webhook event could not be resolved to a subscriber")

	// ErrSubscriberNotFound is returned by SubscriberDirectory lookups.
	ErrSubscriberNotFound = errors.New("subscriber not found")
)
