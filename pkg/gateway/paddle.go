package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle payment gateway.
type PaddleConfig struct {
	APIKey        string        `env:"PADDLE_API_KEY,required"`
	WebhookSecret string        `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string        `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	CallTimeout   time.Duration `env:"PADDLE_CALL_TIMEOUT" envDefault:"10s"`
}

// PaddleGateway implements Gateway and WebhookParser against Paddle Billing.
type PaddleGateway struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleGateway creates a Paddle-backed payment gateway.
func NewPaddleGateway(cfg PaddleConfig) (*PaddleGateway, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, errors.Join(ErrCallFailed, err)
	}

	return &PaddleGateway{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		config:   cfg,
	}, nil
}

// callCtx bounds every outbound gateway call. Local state is already
// committed by the time these calls run, so a timeout surfaces as a
// best-effort failure rather than blocking the request path.
func (g *PaddleGateway) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.config.CallTimeout)
}

func (g *PaddleGateway) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	req := &paddle.CreateCustomerRequest{
		Email: params.Email,
		CustomData: paddle.CustomData{
			"subscriber_id": params.SubscriberID,
		},
	}
	if params.Name != "" {
		req.Name = paddle.PtrTo(params.Name)
	}

	customer, err := g.client.CustomersClient.CreateCustomer(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrCallFailed, err)
	}
	return mapPaddleCustomer(customer), nil
}

func (g *PaddleGateway) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	customer, err := g.client.CustomersClient.GetCustomer(ctx, &paddle.GetCustomerRequest{
		CustomerID: customerID,
	})
	if err != nil {
		return nil, errors.Join(ErrCustomerNotFound, err)
	}
	return mapPaddleCustomer(customer), nil
}

func (g *PaddleGateway) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	// Paddle creates subscriptions through a completed transaction rather
	// than a direct call, so billing starts with a catalog-item transaction
	// carrying the subscriber id in custom data for webhook resolution.
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.PriceID,
		Quantity: 1,
	})
	txn, err := g.client.TransactionsClient.CreateTransaction(ctx, &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"subscriber_id": params.SubscriberID,
		},
		CustomerID: paddle.PtrTo(params.CustomerID),
	})
	if err != nil {
		return nil, errors.Join(ErrCallFailed, err)
	}

	sub := &Subscription{
		CustomerID: params.CustomerID,
		PriceID:    params.PriceID,
		Status:     string(txn.Status),
	}
	if txn.SubscriptionID != nil {
		sub.ID = *txn.SubscriptionID
	}
	return sub, nil
}

func (g *PaddleGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	sub, err := g.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return nil, errors.Join(ErrSubscriptionNotFound, err)
	}
	return mapPaddleSubscription(sub), nil
}

func (g *PaddleGateway) UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) error {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
		PriceID:  params.PriceID,
		Quantity: 1,
	})

	mode := paddle.ProrationBillingModeFullNextBillingPeriod
	if params.Prorate {
		mode = paddle.ProrationBillingModeProratedImmediately
	}

	_, err := g.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       params.SubscriptionID,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(mode),
	})
	if err != nil {
		return errors.Join(ErrCallFailed, err)
	}
	return nil
}

func (g *PaddleGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err := g.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return errors.Join(ErrCallFailed, err)
	}
	return nil
}

func (g *PaddleGateway) PauseSubscription(ctx context.Context, subscriptionID string) error {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err := g.client.SubscriptionsClient.PauseSubscription(ctx, &paddle.PauseSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return errors.Join(ErrCallFailed, err)
	}
	return nil
}

func (g *PaddleGateway) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err := g.client.SubscriptionsClient.ResumeSubscription(ctx, &paddle.ResumeSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return errors.Join(ErrCallFailed, err)
	}
	return nil
}

// ParseWebhook verifies the Paddle signature and normalizes the event.
func (g *PaddleGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := g.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}
	if !valid {
		return nil, ErrSignatureInvalid
	}

	return parsePaddlePayload(payload)
}

// parsePaddlePayload normalizes a verified Paddle webhook body. Split from
// signature verification so event mapping is testable with fixture JSON.
func parsePaddlePayload(payload []byte) (*Event, error) {
	var raw struct {
		EventID    string         `json:"event_id"`
		EventType  string         `json:"event_type"`
		OccurredAt time.Time      `json:"occurred_at"`
		Data       map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	event := &Event{
		ID:            raw.EventID,
		Kind:          mapPaddleEventKind(raw.EventType),
		ProviderEvent: raw.EventType,
		OccurredAt:    raw.OccurredAt,
		Raw:           raw.Data,
	}

	if status, ok := raw.Data["status"].(string); ok {
		event.Status = status
	}
	if customData, ok := raw.Data["custom_data"].(map[string]any); ok {
		if subscriberID, ok := customData["subscriber_id"].(string); ok {
			event.SubscriberID = subscriberID
		}
	}
	if customerID, ok := raw.Data["customer_id"].(string); ok {
		event.CustomerID = customerID
	}

	switch {
	case strings.HasPrefix(raw.EventType, "subscription."):
		if subID, ok := raw.Data["id"].(string); ok {
			event.SubscriptionID = subID
		}
		if period, ok := raw.Data["current_billing_period"].(map[string]any); ok {
			event.PeriodStart = parsePaddleTime(period["starts_at"])
			event.PeriodEnd = parsePaddleTime(period["ends_at"])
		}
		if items, ok := raw.Data["items"].([]any); ok && len(items) > 0 {
			if item, ok := items[0].(map[string]any); ok {
				if price, ok := item["price"].(map[string]any); ok {
					if priceID, ok := price["id"].(string); ok {
						event.PriceID = priceID
					}
				}
			}
		}
	case strings.HasPrefix(raw.EventType, "transaction."):
		if subID, ok := raw.Data["subscription_id"].(string); ok {
			event.SubscriptionID = subID
		}
		if items, ok := raw.Data["items"].([]any); ok && len(items) > 0 {
			if item, ok := items[0].(map[string]any); ok {
				if priceID, ok := item["price_id"].(string); ok {
					event.PriceID = priceID
				}
			}
		}
	}

	return event, nil
}

func parsePaddleTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func mapPaddleEventKind(providerEvent string) EventKind {
	switch providerEvent {
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.paused", "subscription.resumed":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionDeleted
	case "transaction.completed", "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}

func mapPaddleCustomer(c *paddle.Customer) *Customer {
	customer := &Customer{
		ID:    c.ID,
		Email: c.Email,
	}
	if c.Name != nil {
		customer.Name = *c.Name
	}
	return customer
}

func mapPaddleSubscription(s *paddle.Subscription) *Subscription {
	sub := &Subscription{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		Status:     string(s.Status),
	}
	if s.CurrentBillingPeriod != nil {
		if t := parsePaddleTime(s.CurrentBillingPeriod.StartsAt); t != nil {
			sub.PeriodStart = *t
		}
		if t := parsePaddleTime(s.CurrentBillingPeriod.EndsAt); t != nil {
			sub.PeriodEnd = *t
		}
	}
	if len(s.Items) > 0 {
		if id := s.Items[0].Price.ID; id != "" {
			sub.PriceID = id
		}
	}
	return sub
}
