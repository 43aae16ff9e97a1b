// Package subscription holds the core domain model of the DwellCare billing
// system: the Subscription record with its lifecycle status table, pause
// episodes (PauseRecord), per-cycle perk consumption (PerkUsage), and the
// persistence contracts shared by the orchestrator, the pause/resume manager,
// and the webhook reconciler.
//
// Invariants live here and are enforced on every save:
//
//   - IsPaused is true iff an unresolved pause window exists.
//   - A subscription may not be both cancelled and paused.
//   - At most one active pause record exists per subscription.
//   - A cancellation lock always carries a non-empty reason.
//
// Status changes go through Subscription.Transition, which enforces the
// lifecycle transition table; illegal transitions return ErrInvalidTransition
// instead of corrupting the record.
//
// Per-subscriber serialization is expressed by the Locker interface: every
// mutation path wraps its read-modify-write in WithSubscriberLock so a plan
// change and a concurrent webhook update for the same subscriber cannot
// interleave. In-memory implementations of all contracts are provided for
// tests and local development; pkg/pg provides the Postgres-backed ones.
package subscription
