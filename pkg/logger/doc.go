// Package logger standardizes structured logging across the billing
// services: a single factory around log/slog with functional options,
// billing-domain attribute constructors (subscriber id, tier, gateway event
// id), and a handler decorator that injects context-derived attributes on
// every record.
package logger
