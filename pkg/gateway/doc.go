// Package gateway models the external payment processor's observable
// contract: customer and subscription lifecycle calls, pause-collection
// semantics, and signed asynchronous event delivery.
//
// The Gateway interface abstracts the provider so the billing core never
// depends on a vendor SDK directly; PaddleGateway is the production
// implementation on Paddle Billing. Webhook payloads are verified and
// normalized into Event values whose gateway subscription id serves as the
// idempotency key downstream.
//
// Gateway calls from the pause/resume and plan-change paths are best-effort:
// the local record is authoritative for service availability, so adapter
// errors are surfaced to the caller but never roll back committed local
// state. Every outbound call is bounded by the configured timeout.
package gateway
