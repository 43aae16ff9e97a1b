// Package renewal owns the billing cycle boundary: rolling period windows
// forward, applying downgrades deferred by the plan change orchestrator,
// re-pricing the next charge, and issuing a fresh perk usage record with any
// visit carryover applied.
//
// The Scheduler runs the renewal job and the pause sweeps on cron schedules;
// every job is re-entrant, so a failed run is simply retried by the next
// tick.
package renewal
