// Package redis connects the billing core to Redis and hosts the
// processed-event ledger used by the webhook reconciler for replay
// suppression.
//
// Connect retries with a configurable backoff so a service starting before
// Redis does not crash-loop. Healthcheck plugs into liveness/readiness
// probes. EventLedger is a TTL-bounded SETNX set of processed gateway event
// ids.
package redis
