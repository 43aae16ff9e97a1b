package billing

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/dwellcare/billing/pkg/httpserver"
)

// Serve runs the billing HTTP surface: the gateway webhook endpoint plus
// liveness ("/healthz") and readiness ("/readyz") probes built from the given
// dependency checks. Blocks until ctx is cancelled or the process receives an
// interrupt. Requires Dependencies.Parser.
func (s *Service) Serve(ctx context.Context, cfg httpserver.Config, probes ...func(context.Context) error) error {
	r := chi.NewRouter()
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, s.logger))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, s.logger, probes...))
	r.Mount("/", s.WebhookHandler())

	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(s.logger))
	return srv.Run(ctx, r)
}
