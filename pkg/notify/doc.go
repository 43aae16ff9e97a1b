// Package notify delivers subscriber-facing billing lifecycle messages:
// grace period started, payment recovered, subscription suspended, and
// pause/resume confirmations.
//
// Delivery is fire-and-forget from the billing core's point of view. Multi
// fans out to several channels and logs per-channel failures without
// propagating them; EmailNotifier sends over Postmark; LogNotifier is the
// development and fallback channel.
package notify
