package gateway

import "errors"

var (
	ErrMissingAPIKey        = errors.New("gateway API key is required")
	ErrMissingWebhookSecret = errors.New("gateway webhook secret is required")
	ErrInvalidEnvironment   = errors.New("invalid gateway environment")

	ErrSignatureInvalid = errors.New("webhook signature verification failed")
	ErrMalformedPayload = errors.New("malformed webhook payload")

	ErrCustomerNotFound     = errors.New("gateway customer not found")
	ErrSubscriptionNotFound = errors.New("gateway subscription not found")
	ErrCallFailed           = errors.New("gateway call failed")
)
