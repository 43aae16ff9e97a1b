// Package planchange orchestrates subscription tier changes.
//
// Upgrades take effect immediately with a prorated charge for the remainder
// of the current period; downgrades are scheduled for the end of the period
// and are blocked while the subscriber has consumed perks the target tier
// does not grant. Unused visit credits carry over across the change up to a
// hard cap.
//
// The local record is the source of truth: it is committed first, and the
// gateway price swap is a best-effort follow-up reconciled via webhooks.
package planchange
