package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
)

const (
	DefaultStoreTimeout  = 5 * time.Second
	DefaultNotifyTimeout = 10 * time.Second

	// maxTransitionAttempts bounds the re-read/retry loop when a concurrent writer
	// bumps the registration's version between our read and our write.
	maxTransitionAttempts = 5

	webhookResultRejected = "rejected"
	webhookResultNotFound = "not_found"
	webhookResultError    = "error"
)

// ReconcilerConfig tunes the webhook reconciler. Zero values fall back to the defaults.
type ReconcilerConfig struct {
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
	Now           func() time.Time
}

type reconcilerService struct {
	store         domain.EntityStore
	gateways      domain.GatewayRegistry
	emails        domain.EmailService
	logger        *slog.Logger
	metrics       *metrics.Metrics
	storeTimeout  time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewReconcilerService returns a ReconcilerService. emails may be nil, in which case no
// payment confirmation is sent.
func NewReconcilerService(store domain.EntityStore, gateways domain.GatewayRegistry, emails domain.EmailService, logger *slog.Logger, m *metrics.Metrics, cfg ReconcilerConfig) domain.ReconcilerService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &reconcilerService{
		store:         store,
		gateways:      gateways,
		emails:        emails,
		logger:        logger,
		metrics:       m,
		storeTimeout:  cfg.StoreTimeout,
		notifyTimeout: cfg.NotifyTimeout,
		now:           cfg.Now,
	}
}

// HandleWebhook normalizes a gateway callback and, when it reports a payment, moves the
// referenced registration to paid. Redelivery of the same callback is a no-op.
func (s *reconcilerService) HandleWebhook(ctx context.Context, gatewayName string, payload []byte) (*domain.WebhookOutcome, error) {
	adapter, ok := s.gateways.Get(gatewayName)
	if !ok {
		s.metrics.WebhookOutcome(gatewayName, webhookResultRejected)
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGateway, gatewayName)
	}
	gatewayName = adapter.Name()

	event, err := adapter.Parse(payload)
	if err != nil {
		s.metrics.WebhookOutcome(gatewayName, webhookResultRejected)
		s.logger.WarnContext(ctx, "webhook payload rejected", "gateway", gatewayName, "err", err)
		return nil, err
	}
	pe, err := event.Normalize()
	if err != nil {
		s.metrics.WebhookOutcome(gatewayName, webhookResultRejected)
		s.logger.WarnContext(ctx, "webhook payload rejected", "gateway", gatewayName, "err", err)
		return nil, err
	}

	rc, doc, err := s.resolve(ctx, pe.ReferenceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.WebhookOutcome(gatewayName, webhookResultNotFound)
			s.logger.ErrorContext(ctx, "payment reference matched no registration",
				"gateway", gatewayName, "reference", pe.ReferenceID, "status", pe.RawStatus)
		} else {
			s.metrics.WebhookOutcome(gatewayName, webhookResultError)
		}
		return nil, err
	}

	outcome := &domain.WebhookOutcome{
		Gateway:        gatewayName,
		ReferenceID:    pe.ReferenceID,
		Kind:           rc.Kind,
		ReportedStatus: pe.ReportedStatus,
	}

	if pe.ReportedStatus != domain.ReportedStatusPaid {
		reg, err := domain.DecodeRegistration(rc, doc)
		if err != nil {
			s.metrics.WebhookOutcome(gatewayName, webhookResultError)
			return nil, fmt.Errorf("decode %s/%s: %w", rc.Collection, doc.ID, err)
		}
		outcome.Result = domain.WebhookResultIgnored
		outcome.PaymentStatus = reg.Base().PaymentStatus
		s.metrics.WebhookOutcome(gatewayName, string(outcome.Result))
		s.logger.InfoContext(ctx, "webhook status not acted upon",
			"gateway", gatewayName, "reference", pe.ReferenceID, "status", pe.RawStatus, "reported", pe.ReportedStatus)
		return outcome, nil
	}

	reg, transitioned, err := s.markPaid(ctx, rc, doc, pe.Gateway)
	if err != nil {
		s.metrics.WebhookOutcome(gatewayName, webhookResultError)
		return nil, err
	}
	outcome.PaymentStatus = reg.Base().PaymentStatus
	if transitioned {
		outcome.Result = domain.WebhookResultProcessed
		s.logger.InfoContext(ctx, "registration marked paid", "gateway", gatewayName, "kind", rc.Kind, "reference", pe.ReferenceID)
		s.notify(ctx, reg)
	} else if outcome.PaymentStatus == domain.PaymentStatusPaid {
		outcome.Result = domain.WebhookResultNoop
		s.logger.InfoContext(ctx, "registration already paid", "gateway", gatewayName, "kind", rc.Kind, "reference", pe.ReferenceID)
	} else {
		outcome.Result = domain.WebhookResultIgnored
		s.logger.WarnContext(ctx, "payment reported for a settled registration", "gateway", gatewayName,
			"kind", rc.Kind, "reference", pe.ReferenceID, "payment_status", outcome.PaymentStatus)
	}
	s.metrics.WebhookOutcome(gatewayName, string(outcome.Result))
	return outcome, nil
}

// resolve probes the registration collections in order and returns the first hit.
func (s *reconcilerService) resolve(ctx context.Context, ref string) (domain.RegistrationCollection, *domain.Document, error) {
	for _, rc := range domain.RegistrationCollections {
		doc, err := s.get(ctx, rc.Collection, ref)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return rc, nil, fmt.Errorf("lookup %s/%s: %w", rc.Collection, ref, err)
		}
		return rc, doc, nil
	}
	return domain.RegistrationCollection{}, nil, fmt.Errorf("registration %q: %w", ref, domain.ErrNotFound)
}

// markPaid moves the registration to paid with update-if-match. It reports whether this
// call performed the transition; false means the registration was already paid or refunded.
func (s *reconcilerService) markPaid(ctx context.Context, rc domain.RegistrationCollection, doc *domain.Document, gatewayName string) (domain.Registration, bool, error) {
	id := doc.ID
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		reg, err := domain.DecodeRegistration(rc, doc)
		if err != nil {
			return nil, false, fmt.Errorf("decode %s/%s: %w", rc.Collection, id, err)
		}
		if !reg.Base().PaymentStatus.AcceptsPayment() {
			return reg, false, nil
		}

		now := s.now().UTC()
		updated, err := s.updateIfMatch(ctx, rc.Collection, id, doc.Version, domain.Fields{
			domain.FieldPaymentStatus:  domain.PaymentStatusPaid,
			domain.FieldPaidAt:         now,
			domain.FieldUpdatedAt:      now,
			domain.FieldPaymentGateway: gatewayName,
		})
		switch {
		case err == nil:
			reg, err := domain.DecodeRegistration(rc, updated)
			if err != nil {
				return nil, false, fmt.Errorf("decode %s/%s: %w", rc.Collection, id, err)
			}
			return reg, true, nil
		case errors.Is(err, domain.ErrPreconditionFailed):
			s.logger.DebugContext(ctx, "registration changed concurrently, retrying", "collection", rc.Collection, "id", id)
			if doc, err = s.get(ctx, rc.Collection, id); err != nil {
				return nil, false, fmt.Errorf("reload %s/%s: %w", rc.Collection, id, err)
			}
		default:
			return nil, false, fmt.Errorf("mark %s/%s paid: %w", rc.Collection, id, err)
		}
	}
	return nil, false, fmt.Errorf("mark %s/%s paid: %w", rc.Collection, id, domain.ErrPreconditionFailed)
}

// notify sends the payment confirmation. It is bounded by its own timeout and survives
// cancellation of the delivery's request; failures are logged and dropped.
func (s *reconcilerService) notify(ctx context.Context, reg domain.Registration) {
	if s.emails == nil {
		return
	}
	contact := reg.Contact()
	base := reg.Base()
	if contact.Email == "" {
		s.logger.WarnContext(ctx, "paid registration has no contact email", "kind", reg.Kind(), "id", base.ID)
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	err := s.emails.SendPaymentConfirmation(nctx, &domain.PaymentConfirmationEmailData{
		Email:       contact.Email,
		Name:        contact.Name,
		Kind:        reg.Kind(),
		ReferenceID: base.ID,
		AmountCents: base.AmountCents,
		Currency:    base.Currency,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "payment confirmation not sent", "kind", reg.Kind(), "id", base.ID, "err", err)
	}
}

func (s *reconcilerService) get(ctx context.Context, collection, id string) (*domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.Get(ctx, collection, id)
}

func (s *reconcilerService) updateIfMatch(ctx context.Context, collection, id string, version int64, fields domain.Fields) (*domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.UpdateIfMatch(ctx, collection, id, version, fields)
}
