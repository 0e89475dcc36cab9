package gateway

import (
	"encoding/json"
	"strings"

	"eventregistration/internal/domain"
)

const FlowPayName = "flowpay"

type flowPayCharge struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// FlowPayEvent is a FlowPay callback body. The reference may sit under charge.reference,
// reference or custom_id; the status under charge.status or status.
type FlowPayEvent struct {
	Charge    *flowPayCharge `json:"charge"`
	Reference string         `json:"reference"`
	CustomID  string         `json:"custom_id"`
	Status    string         `json:"status"`

	raw json.RawMessage
}

var flowPayReferenceExtractors = []extractor[*FlowPayEvent]{
	func(e *FlowPayEvent) string {
		if e.Charge == nil {
			return ""
		}
		return e.Charge.Reference
	},
	func(e *FlowPayEvent) string { return e.Reference },
	func(e *FlowPayEvent) string { return e.CustomID },
}

var flowPayStatusExtractors = []extractor[*FlowPayEvent]{
	func(e *FlowPayEvent) string {
		if e.Charge == nil {
			return ""
		}
		return e.Charge.Status
	},
	func(e *FlowPayEvent) string { return e.Status },
}

func (e *FlowPayEvent) Gateway() string { return FlowPayName }

func (e *FlowPayEvent) Normalize() (*domain.PaymentEvent, error) {
	ref := firstMatch(e, flowPayReferenceExtractors)
	if ref == "" {
		return nil, domain.ErrMissingReference
	}
	status := firstMatch(e, flowPayStatusExtractors)
	return &domain.PaymentEvent{
		Gateway:        FlowPayName,
		ReferenceID:    ref,
		ReportedStatus: flowPayStatus(status),
		RawStatus:      status,
		RawPayload:     e.raw,
	}, nil
}

func flowPayStatus(s string) domain.ReportedStatus {
	switch strings.ToLower(s) {
	case "paid":
		return domain.ReportedStatusPaid
	case "pending", "waiting", "processing":
		return domain.ReportedStatusPending
	case "failed", "refused":
		return domain.ReportedStatusFailed
	case "refunded":
		return domain.ReportedStatusRefunded
	case "expired", "canceled", "cancelled":
		return domain.ReportedStatusExpired
	default:
		return domain.ReportedStatusUnknown
	}
}

type flowPayAdapter struct{}

// NewFlowPay returns the FlowPay adapter. Its paid sentinel is "paid".
func NewFlowPay() domain.GatewayAdapter {
	return flowPayAdapter{}
}

func (flowPayAdapter) Name() string { return FlowPayName }

func (flowPayAdapter) Parse(payload []byte) (domain.GatewayEvent, error) {
	ev := &FlowPayEvent{}
	if err := decode(FlowPayName, payload, ev); err != nil {
		return nil, err
	}
	ev.raw = append(json.RawMessage(nil), payload...)
	return ev, nil
}
