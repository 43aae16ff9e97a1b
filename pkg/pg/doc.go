// Package pg provides the PostgreSQL persistence layer: connection pooling
// with startup retries, goose migrations, health probes, and the
// Postgres-backed implementations of the subscription, pause history, and
// perk usage stores plus the per-subscriber advisory locker.
package pg
