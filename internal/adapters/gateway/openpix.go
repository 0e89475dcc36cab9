package gateway

import (
	"encoding/json"
	"strings"

	"eventregistration/internal/domain"
)

const OpenPixName = "openpix"

// OpenPix webhook event names.
const (
	openPixChargeCompleted = "OPENPIX:CHARGE_COMPLETED"
	openPixChargeExpired   = "OPENPIX:CHARGE_EXPIRED"
)

type openPixCharge struct {
	CorrelationID string `json:"correlationID"`
	Status        string `json:"status"`
	Value         int64  `json:"value"`
}

// OpenPixEvent is an OpenPix callback body. The reference may sit under
// charge.correlationID, correlationID, reference or custom_id.
type OpenPixEvent struct {
	Event         string         `json:"event"`
	Charge        *openPixCharge `json:"charge"`
	CorrelationID string         `json:"correlationID"`
	Reference     string         `json:"reference"`
	CustomID      string         `json:"custom_id"`
	Status        string         `json:"status"`

	raw json.RawMessage
}

var openPixReferenceExtractors = []extractor[*OpenPixEvent]{
	func(e *OpenPixEvent) string {
		if e.Charge == nil {
			return ""
		}
		return e.Charge.CorrelationID
	},
	func(e *OpenPixEvent) string { return e.CorrelationID },
	func(e *OpenPixEvent) string { return e.Reference },
	func(e *OpenPixEvent) string { return e.CustomID },
}

var openPixStatusExtractors = []extractor[*OpenPixEvent]{
	func(e *OpenPixEvent) string {
		if e.Charge == nil {
			return ""
		}
		return e.Charge.Status
	},
	func(e *OpenPixEvent) string { return e.Status },
}

func (e *OpenPixEvent) Gateway() string { return OpenPixName }

func (e *OpenPixEvent) Normalize() (*domain.PaymentEvent, error) {
	ref := firstMatch(e, openPixReferenceExtractors)
	if ref == "" {
		return nil, domain.ErrMissingReference
	}
	status := firstMatch(e, openPixStatusExtractors)
	reported := openPixStatus(status)
	if reported == domain.ReportedStatusUnknown {
		switch e.Event {
		case openPixChargeCompleted:
			reported = domain.ReportedStatusPaid
		case openPixChargeExpired:
			reported = domain.ReportedStatusExpired
		}
	}
	return &domain.PaymentEvent{
		Gateway:        OpenPixName,
		ReferenceID:    ref,
		ReportedStatus: reported,
		RawStatus:      status,
		RawPayload:     e.raw,
	}, nil
}

func openPixStatus(s string) domain.ReportedStatus {
	switch strings.ToUpper(s) {
	case "COMPLETED":
		return domain.ReportedStatusPaid
	case "ACTIVE":
		return domain.ReportedStatusPending
	case "EXPIRED":
		return domain.ReportedStatusExpired
	case "REFUNDED":
		return domain.ReportedStatusRefunded
	default:
		return domain.ReportedStatusUnknown
	}
}

type openPixAdapter struct{}

// NewOpenPix returns the OpenPix adapter. Its paid sentinel is "COMPLETED".
func NewOpenPix() domain.GatewayAdapter {
	return openPixAdapter{}
}

func (openPixAdapter) Name() string { return OpenPixName }

func (openPixAdapter) Parse(payload []byte) (domain.GatewayEvent, error) {
	ev := &OpenPixEvent{}
	if err := decode(OpenPixName, payload, ev); err != nil {
		return nil, err
	}
	ev.raw = append(json.RawMessage(nil), payload...)
	return ev, nil
}
