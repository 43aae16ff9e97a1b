package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dwellcare/billing/pkg/logger"
)

// HealthCheckHandler serves liveness and readiness probes. With no probe
// functions it answers "ALIVE"; with probes it runs each (database, redis,
// gateway reachability) and answers "READY" or "NOT_READY".
func HealthCheckHandler(ctx context.Context, log *slog.Logger, probes ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(probes) == 0 {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ALIVE"))
			return
		}

		for _, probe := range probes {
			if err := probe(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	}
}
