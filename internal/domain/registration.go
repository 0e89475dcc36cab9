package domain

import (
	"context"
	"time"
)

// PaymentStatus is the settlement state of a registration.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusExpired  PaymentStatus = "expired"
)

// AcceptsPayment reports whether a confirmed payment may move a registration in status s
// to paid. Paid and refunded registrations never go back; failed and expired charges can
// still be settled by a later confirmation.
func (s PaymentStatus) AcceptsPayment() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusRefunded:
		return false
	}
	return true
}

// RegistrationKind names a registration variant.
type RegistrationKind string

const (
	RegistrationKindTeam        RegistrationKind = "team"
	RegistrationKindAudiovisual RegistrationKind = "audiovisual"
	RegistrationKindPayment     RegistrationKind = "payment"
)

// Registration field names written by the reconciler.
const (
	FieldPaymentStatus  = "paymentStatus"
	FieldPaidAt         = "paidAt"
	FieldUpdatedAt      = "updatedAt"
	FieldPaymentGateway = "paymentGateway"
)

// RegistrationBase holds the fields every registration variant shares.
type RegistrationBase struct {
	ID             string        `json:"id"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	AmountCents    int64         `json:"amountCents"`
	Currency       string        `json:"currency,omitempty"`
	PaymentGateway string        `json:"paymentGateway,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	PaidAt         *time.Time    `json:"paidAt,omitempty"`
}

// Contact is who gets told about a settled registration.
type Contact struct {
	Name  string
	Email string
}

// Registration is implemented by every registration variant.
type Registration interface {
	Kind() RegistrationKind
	Base() *RegistrationBase
	Contact() Contact
}

// TeamMember is one entry of a team roster.
// swagger:model TeamMember
type TeamMember struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email"`
	Name     string    `json:"name,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Team is a team registration with its roster.
// swagger:model Team
type Team struct {
	RegistrationBase
	Name         string       `json:"name"`
	CaptainID    string       `json:"captainId"`
	CaptainEmail string       `json:"captainEmail"`
	CaptainName  string       `json:"captainName,omitempty"`
	Members      []TeamMember `json:"members"`
}

func (t *Team) Kind() RegistrationKind  { return RegistrationKindTeam }
func (t *Team) Base() *RegistrationBase { return &t.RegistrationBase }
func (t *Team) Contact() Contact        { return Contact{Name: t.CaptainName, Email: t.CaptainEmail} }

// HasMember reports whether the user or email is already on the roster.
func (t *Team) HasMember(userID, email string) bool {
	for _, m := range t.Members {
		if (userID != "" && m.UserID == userID) || (email != "" && m.Email == email) {
			return true
		}
	}
	return false
}

// AudiovisualApplication is a press/media accreditation request.
// swagger:model AudiovisualApplication
type AudiovisualApplication struct {
	RegistrationBase
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	MediaType string `json:"mediaType"`
	Outlet    string `json:"outlet,omitempty"`
}

func (a *AudiovisualApplication) Kind() RegistrationKind  { return RegistrationKindAudiovisual }
func (a *AudiovisualApplication) Base() *RegistrationBase { return &a.RegistrationBase }
func (a *AudiovisualApplication) Contact() Contact        { return Contact{Name: a.FullName, Email: a.Email} }

// GenericPayment is an ad-hoc charge with free-form metadata.
// swagger:model GenericPayment
type GenericPayment struct {
	RegistrationBase
	PayerName   string            `json:"payerName,omitempty"`
	PayerEmail  string            `json:"payerEmail,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (p *GenericPayment) Kind() RegistrationKind  { return RegistrationKindPayment }
func (p *GenericPayment) Base() *RegistrationBase { return &p.RegistrationBase }
func (p *GenericPayment) Contact() Contact        { return Contact{Name: p.PayerName, Email: p.PayerEmail} }

// RegistrationCollection binds a registration kind to its collection.
type RegistrationCollection struct {
	Kind       RegistrationKind
	Collection string
	New        func() Registration
}

// RegistrationCollections lists the collections a payment reference is resolved against,
// in probe order. The generic payments bucket comes last.
var RegistrationCollections = []RegistrationCollection{
	{Kind: RegistrationKindTeam, Collection: CollectionTeams, New: func() Registration { return &Team{} }},
	{Kind: RegistrationKindAudiovisual, Collection: CollectionAudiovisualApplications, New: func() Registration { return &AudiovisualApplication{} }},
	{Kind: RegistrationKindPayment, Collection: CollectionPayments, New: func() Registration { return &GenericPayment{} }},
}

// RegistrationCollectionFor returns the collection binding for a kind.
func RegistrationCollectionFor(kind RegistrationKind) (RegistrationCollection, bool) {
	for _, rc := range RegistrationCollections {
		if rc.Kind == kind {
			return rc, true
		}
	}
	return RegistrationCollection{}, false
}

// DecodeRegistration decodes a stored document into the variant bound to rc.
func DecodeRegistration(rc RegistrationCollection, doc *Document) (Registration, error) {
	reg := rc.New()
	if err := doc.Decode(reg); err != nil {
		return nil, err
	}
	if reg.Base().ID == "" {
		reg.Base().ID = doc.ID
	}
	if reg.Base().PaymentStatus == "" {
		reg.Base().PaymentStatus = PaymentStatusPending
	}
	return reg, nil
}

// RegistrationService exposes read access to registrations.
type RegistrationService interface {
	GetRegistration(ctx context.Context, kind RegistrationKind, id string) (Registration, error)
}
