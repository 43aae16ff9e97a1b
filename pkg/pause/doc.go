// Package pause governs subscription pause windows.
//
// Voluntary pauses run 1 to 6 months and require an active subscription with
// no technician visit still scheduled. Involuntary pauses open automatically
// after a payment failure: the subscription goes past-due for a grace window
// during which the gateway keeps retrying collection, then either recovers to
// active or is suspended by the grace-period sweep.
//
// Pause history is append-only; at most one pause episode is open per
// subscription. Gateway pause/resume calls are best-effort because the local
// record is authoritative for service availability.
package pause
