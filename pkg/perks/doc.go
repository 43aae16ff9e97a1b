// Package perks is the per-subscriber consumption ledger for tier-gated
// benefits: priority booking slots, the member discount, the free seasonal
// service, and emergency service.
//
// Usage records are created lazily on first consumption and live for one
// billing cycle; the renewal job replaces them at the cycle boundary.
// Consuming any perk permanently locks self-service cancellation on the
// owning subscription with a reason naming the perk — the lock never
// re-enables automatically.
//
// Reads go through an LRU cache that is invalidated on every write; the
// store remains the source of truth.
package perks
