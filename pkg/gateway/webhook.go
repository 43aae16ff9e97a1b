package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// EventHandlerFunc processes a verified, normalized gateway event. Returning
// an error makes the delivery fail with a 5xx so the gateway redelivers.
type EventHandlerFunc func(r *http.Request, event *Event) error

// WebhookRouterOption configures the webhook router.
type WebhookRouterOption func(*webhookRouter)

// WithWebhookLogger sets the logger for delivery outcomes.
func WithWebhookLogger(logger *slog.Logger) WebhookRouterOption {
	return func(wr *webhookRouter) {
		if logger != nil {
			wr.logger = logger
		}
	}
}

type webhookRouter struct {
	parser WebhookParser
	handle EventHandlerFunc
	logger *slog.Logger
}

// NewWebhookRouter mounts the asynchronous event delivery endpoint.
// Signature failures and malformed payloads are rejected with 4xx (the
// gateway must not retry those); handler errors return 5xx to trigger
// redelivery. Panics on nil dependencies to fail fast at startup.
func NewWebhookRouter(parser WebhookParser, handle EventHandlerFunc, opts ...WebhookRouterOption) http.Handler {
	if parser == nil {
		panic("gateway: WebhookParser is required")
	}
	if handle == nil {
		panic("gateway: EventHandlerFunc is required")
	}

	wr := &webhookRouter{
		parser: parser,
		handle: handle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(wr)
	}

	r := chi.NewRouter()
	r.Post("/webhooks/paddle", wr.serve)
	return r
}

func (wr *webhookRouter) serve(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	event, err := wr.parser.ParseWebhook(r.Context(), payload, r.Header.Get("Paddle-Signature"))
	if err != nil {
		if errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrMalformedPayload) {
			wr.logger.LogAttrs(r.Context(), slog.LevelWarn, "rejected webhook delivery",
				slog.String("error", err.Error()),
			)
			http.Error(w, "invalid webhook", http.StatusBadRequest)
			return
		}
		http.Error(w, "webhook parsing failed", http.StatusInternalServerError)
		return
	}

	if err := wr.handle(r, event); err != nil {
		// Processing errors propagate as 5xx so the gateway redelivers.
		wr.logger.LogAttrs(r.Context(), slog.LevelError, "webhook processing failed",
			slog.String("event_id", event.ID),
			slog.String("event_kind", string(event.Kind)),
			slog.String("error", err.Error()),
		)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
