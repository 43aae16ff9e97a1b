// Package reconciler applies the payment gateway's asynchronous event
// stream (subscription created/updated/deleted, payment succeeded/failed)
// to local subscription records.
//
// Handling is idempotent: lookups key on the gateway's subscription id,
// writes are upserts, and a Redis-backed ledger of processed event ids
// short-circuits replays. Ownership of a creation event is resolved through
// an explicit chain (metadata subscriber id, gateway customer reference,
// email match); events that exhaust the chain are logged as a
// data-integrity alarm and dropped.
//
// Genuine processing errors propagate so the delivery layer can signal the
// gateway to retry; only the pause manager's best-effort external calls are
// ever swallowed, and that happens inside the pause manager itself.
package reconciler
