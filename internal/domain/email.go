package domain

import (
	"context"
	"fmt"
)

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// PaymentConfirmationEmailData holds data for the payment confirmation email.
type PaymentConfirmationEmailData struct {
	Email       string
	Name        string
	Kind        RegistrationKind
	ReferenceID string
	AmountCents int64
	Currency    string
}

// Amount formats AmountCents as a decimal string, e.g. "150.00".
func (d *PaymentConfirmationEmailData) Amount() string {
	return formatCents(d.AmountCents)
}

// TeamInvitationEmailData holds data for the team invitation email.
type TeamInvitationEmailData struct {
	Email         string
	TeamName      string
	InvitationID  string
	ExpiresInDays int
}

// EmailService defines the contract for sending domain-level emails. Callers treat
// every method as best effort.
type EmailService interface {
	SendPaymentConfirmation(ctx context.Context, data *PaymentConfirmationEmailData) error
	SendTeamInvitation(ctx context.Context, data *TeamInvitationEmailData) error
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
