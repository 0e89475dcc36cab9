package services

import (
	"context"
	"fmt"
	"log/slog"

	"eventregistration/internal/domain"
)

// Email template names under internal/adapters/email/templates.
const (
	templatePaymentConfirmation = "payment_confirmation"
	templateTeamInvitation      = "team_invitation"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

// SendPaymentConfirmation tells a registration's contact that the payment settled.
func (s *emailService) SendPaymentConfirmation(ctx context.Context, data *domain.PaymentConfirmationEmailData) error {
	if data == nil {
		return fmt.Errorf("payment confirmation data is nil")
	}
	if data.Email == "" {
		return fmt.Errorf("payment confirmation for %s: %w: no recipient", data.ReferenceID, domain.ErrInvalidInput)
	}
	return s.send(ctx, templatePaymentConfirmation, data.Email, data)
}

// SendTeamInvitation tells the invited address about a pending team invitation.
func (s *emailService) SendTeamInvitation(ctx context.Context, data *domain.TeamInvitationEmailData) error {
	if data == nil {
		return fmt.Errorf("team invitation data is nil")
	}
	return s.send(ctx, templateTeamInvitation, data.Email, data)
}

func (s *emailService) send(ctx context.Context, name, to string, data any) error {
	subject, htmlBody, textBody, err := s.renderer.Render(name, data)
	if err != nil {
		return fmt.Errorf("failed to render %s template: %w", name, err)
	}
	if err := s.mailer.Send(ctx, to, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("failed to send %s email: %w", name, err)
	}
	s.logger.InfoContext(ctx, "email sent", "template", name, "to", to)
	return nil
}
