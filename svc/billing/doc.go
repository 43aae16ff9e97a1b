// Package billing composes the billing subsystem into one facade: subscriber
// onboarding and cancellation, plan changes, pauses, perk tracking, webhook
// reconciliation, and the scheduled renewal and sweep jobs.
package billing
