// Package booking defines the scheduling collaborator's contract used by the
// billing core: pausing a subscription is disallowed while a technician
// visit is still on the calendar.
package booking

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Checker reports whether a subscriber has any active service appointment
// scheduled in the future.
type Checker interface {
	HasUpcomingAppointment(ctx context.Context, subscriberID uuid.UUID) (bool, error)
}

// MemoryChecker is an in-memory Checker for tests and local development.
type MemoryChecker struct {
	mu       sync.RWMutex
	upcoming map[uuid.UUID]bool
}

// NewMemoryChecker creates an empty in-memory booking checker.
func NewMemoryChecker() *MemoryChecker {
	return &MemoryChecker{upcoming: make(map[uuid.UUID]bool)}
}

// SetUpcoming marks whether a subscriber has a future appointment.
func (c *MemoryChecker) SetUpcoming(subscriberID uuid.UUID, has bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upcoming[subscriberID] = has
}

func (c *MemoryChecker) HasUpcomingAppointment(_ context.Context, subscriberID uuid.UUID) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.upcoming[subscriberID], nil
}
