package domain

import (
	"context"
	"encoding/json"
)

// ReportedStatus is a gateway status normalized to the platform's vocabulary.
type ReportedStatus string

const (
	ReportedStatusPaid     ReportedStatus = "paid"
	ReportedStatusPending  ReportedStatus = "pending"
	ReportedStatusFailed   ReportedStatus = "failed"
	ReportedStatusRefunded ReportedStatus = "refunded"
	ReportedStatusExpired  ReportedStatus = "expired"
	ReportedStatusUnknown  ReportedStatus = "unknown"
)

// PaymentEvent is the canonical form of a gateway callback. It is never persisted verbatim.
type PaymentEvent struct {
	Gateway        string
	ReferenceID    string
	ReportedStatus ReportedStatus
	RawStatus      string
	RawPayload     json.RawMessage
}

// GatewayEvent is a parsed, gateway-specific callback body.
type GatewayEvent interface {
	Gateway() string
	// Normalize returns ErrMissingReference when no reference field is present.
	Normalize() (*PaymentEvent, error)
}

// GatewayAdapter parses raw callback bodies for a single gateway.
type GatewayAdapter interface {
	Name() string
	// Parse returns ErrInvalidPayload when the body is not a JSON object.
	Parse(payload []byte) (GatewayEvent, error)
}

// GatewayRegistry resolves a gateway adapter by name.
type GatewayRegistry interface {
	Get(name string) (GatewayAdapter, bool)
}

// WebhookResult summarizes what a webhook delivery did.
type WebhookResult string

const (
	// WebhookResultProcessed means the delivery moved the registration to paid.
	WebhookResultProcessed WebhookResult = "processed"
	// WebhookResultNoop means the registration was already paid.
	WebhookResultNoop WebhookResult = "noop"
	// WebhookResultIgnored means the reported status is not acted upon.
	WebhookResultIgnored WebhookResult = "ignored"
)

// WebhookOutcome is returned for every delivery that resolved to a registration.
// swagger:model WebhookOutcome
type WebhookOutcome struct {
	Result         WebhookResult    `json:"result"`
	Gateway        string           `json:"gateway"`
	ReferenceID    string           `json:"reference_id"`
	Kind           RegistrationKind `json:"kind"`
	PaymentStatus  PaymentStatus    `json:"payment_status"`
	ReportedStatus ReportedStatus   `json:"reported_status"`
}

// ReconcilerService converts gateway callbacks into registration state transitions.
type ReconcilerService interface {
	HandleWebhook(ctx context.Context, gateway string, payload []byte) (*WebhookOutcome, error)
}
