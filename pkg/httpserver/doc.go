// Package httpserver hosts the billing HTTP surface: the payment gateway's
// webhook delivery endpoint and the health probes. It wraps net/http with
// graceful shutdown so in-flight webhook deliveries finish (or get retried by
// the gateway) instead of being cut mid-write, and shuts down on context
// cancellation or SIGINT/SIGTERM.
package httpserver
