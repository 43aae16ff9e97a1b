package gateway

import (
	"context"
	"log/slog"
)

// Outcome captures the result of a best-effort gateway call. The billing
// core commits local state first and treats the gateway as eventually
// consistent, so callers inspect the outcome instead of receiving an error
// that would suggest the operation failed.
type Outcome struct {
	Operation string
	Attempted bool
	Err       error
}

// OK reports whether the call either succeeded or was not needed.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// BestEffort runs a gateway call whose failure must not fail the enclosing
// operation. The outcome is logged and returned for observability; the error
// never propagates.
func BestEffort(ctx context.Context, logger *slog.Logger, operation string, fn func(ctx context.Context) error) Outcome {
	if logger == nil {
		logger = slog.Default()
	}

	outcome := Outcome{Operation: operation, Attempted: true}
	if err := fn(ctx); err != nil {
		outcome.Err = err
		logger.LogAttrs(ctx, slog.LevelWarn, "best-effort gateway call failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
	return outcome
}

// Skipped returns an outcome for a call that was not attempted, e.g. when no
// gateway subscription reference exists yet.
func Skipped(operation string) Outcome {
	return Outcome{Operation: operation, Attempted: false}
}
