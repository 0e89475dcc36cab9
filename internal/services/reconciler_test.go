package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventregistration/internal/adapters/gateway"
	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
	"eventregistration/internal/repository/memory"
)

// fakeEmailService records every email it is asked to send.
type fakeEmailService struct {
	mu          sync.Mutex
	err         error
	payments    []*domain.PaymentConfirmationEmailData
	invitations []*domain.TeamInvitationEmailData
}

func (f *fakeEmailService) SendPaymentConfirmation(ctx context.Context, data *domain.PaymentConfirmationEmailData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, data)
	return f.err
}

func (f *fakeEmailService) SendTeamInvitation(ctx context.Context, data *domain.TeamInvitationEmailData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invitations = append(f.invitations, data)
	return f.err
}

func (f *fakeEmailService) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

// writeFailingStore fails every UpdateIfMatch while reads still work.
type writeFailingStore struct {
	domain.EntityStore
	err error
}

func (s *writeFailingStore) UpdateIfMatch(ctx context.Context, collection, id string, version int64, fields domain.Fields) (*domain.Document, error) {
	return nil, s.err
}

func seedRegistrations(t *testing.T, store domain.EntityStore) {
	t.Helper()
	ctx := context.Background()
	_, err := store.Set(ctx, domain.CollectionTeams, "T1", domain.Fields{
		"name":          "Runners",
		"captainId":     "cap-1",
		"captainEmail":  "cap@example.com",
		"captainName":   "Carla",
		"paymentStatus": "pending",
		"amountCents":   15000,
		"currency":      "BRL",
	})
	require.NoError(t, err)
	_, err = store.Set(ctx, domain.CollectionAudiovisualApplications, "A7", domain.Fields{
		"fullName":      "Ana",
		"email":         "ana@example.com",
		"mediaType":     "photo",
		"paymentStatus": "pending",
	})
	require.NoError(t, err)
	_, err = store.Set(ctx, domain.CollectionPayments, "P1", domain.Fields{
		"payerEmail":    "payer@example.com",
		"paymentStatus": "pending",
	})
	require.NoError(t, err)
}

type reconcilerFixture struct {
	store   *memory.Store
	emails  *fakeEmailService
	metrics *metrics.Metrics
	svc     domain.ReconcilerService
	now     time.Time
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		store:   memory.NewStore(),
		emails:  &fakeEmailService{},
		metrics: metrics.New(prometheus.NewRegistry()),
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	seedRegistrations(t, f.store)
	f.svc = NewReconcilerService(f.store, gateway.DefaultRegistry(), f.emails, discardLogger(), f.metrics, ReconcilerConfig{
		Now: func() time.Time { return f.now },
	})
	return f
}

func (f *reconcilerFixture) registration(t *testing.T, collection, id string) map[string]any {
	t.Helper()
	doc, err := f.store.Get(context.Background(), collection, id)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, doc.Decode(&data))
	return data
}

func TestReconciler_flowPayPaid(t *testing.T) {
	f := newReconcilerFixture(t)

	outcome, err := f.svc.HandleWebhook(context.Background(), "flowpay", []byte(`{"charge":{"reference":"T1","status":"paid"}}`))
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookResultProcessed, outcome.Result)
	assert.Equal(t, domain.RegistrationKindTeam, outcome.Kind)
	assert.Equal(t, domain.PaymentStatusPaid, outcome.PaymentStatus)

	data := f.registration(t, domain.CollectionTeams, "T1")
	assert.Equal(t, "paid", data["paymentStatus"])
	assert.Equal(t, "flowpay", data["paymentGateway"])
	assert.NotEmpty(t, data["paidAt"])
	assert.Equal(t, "Runners", data["name"], "unrelated fields are preserved")

	require.Equal(t, 1, f.emails.paymentCount())
	sent := f.emails.payments[0]
	assert.Equal(t, "cap@example.com", sent.Email)
	assert.Equal(t, "Carla", sent.Name)
	assert.Equal(t, "T1", sent.ReferenceID)
	assert.Equal(t, int64(15000), sent.AmountCents)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookOutcomes.WithLabelValues("flowpay", "processed")))
}

func TestReconciler_redeliveryIsNoop(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	body := []byte(`{"charge":{"reference":"T1","status":"paid"}}`)

	_, err := f.svc.HandleWebhook(ctx, "flowpay", body)
	require.NoError(t, err)
	first := f.registration(t, domain.CollectionTeams, "T1")

	f.now = f.now.Add(time.Hour)
	outcome, err := f.svc.HandleWebhook(ctx, "flowpay", body)
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookResultNoop, outcome.Result)
	assert.Equal(t, domain.PaymentStatusPaid, outcome.PaymentStatus)
	assert.Equal(t, first, f.registration(t, domain.CollectionTeams, "T1"), "paidAt is not rewritten")
	assert.Equal(t, 1, f.emails.paymentCount())
}

func TestReconciler_openPixCompletedAudiovisual(t *testing.T) {
	f := newReconcilerFixture(t)

	outcome, err := f.svc.HandleWebhook(context.Background(), "openpix", []byte(`{"charge":{"correlationID":"A7","status":"COMPLETED"}}`))
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookResultProcessed, outcome.Result)
	assert.Equal(t, domain.RegistrationKindAudiovisual, outcome.Kind)
	assert.Equal(t, "paid", f.registration(t, domain.CollectionAudiovisualApplications, "A7")["paymentStatus"])
	require.Equal(t, 1, f.emails.paymentCount())
	assert.Equal(t, "ana@example.com", f.emails.payments[0].Email)
}

func TestReconciler_completedSentinelAppliesOnce(t *testing.T) {
	f := newReconcilerFixture(t)
	_, err := f.store.Set(context.Background(), domain.CollectionTeams, "team-42", domain.Fields{
		"name":          "Forty Two",
		"captainEmail":  "cap42@example.com",
		"paymentStatus": "pending",
	})
	require.NoError(t, err)
	body := []byte(`{"reference":"team-42","status":"COMPLETED"}`)

	first, err := f.svc.HandleWebhook(context.Background(), "openpix", body)
	require.NoError(t, err)
	second, err := f.svc.HandleWebhook(context.Background(), "openpix", body)
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookResultProcessed, first.Result)
	assert.Equal(t, domain.WebhookResultNoop, second.Result)
	assert.Equal(t, "paid", f.registration(t, domain.CollectionTeams, "team-42")["paymentStatus"])
	assert.Equal(t, 1, f.emails.paymentCount())
}

func TestReconciler_genericPaymentBucket(t *testing.T) {
	f := newReconcilerFixture(t)

	outcome, err := f.svc.HandleWebhook(context.Background(), "flowpay", []byte(`{"custom_id":"P1","status":"paid"}`))
	require.NoError(t, err)

	assert.Equal(t, domain.RegistrationKindPayment, outcome.Kind)
	assert.Equal(t, "paid", f.registration(t, domain.CollectionPayments, "P1")["paymentStatus"])
}

func TestReconciler_probeOrderPrefersTeams(t *testing.T) {
	f := newReconcilerFixture(t)
	_, err := f.store.Set(context.Background(), domain.CollectionPayments, "T1", domain.Fields{"paymentStatus": "pending"})
	require.NoError(t, err)

	outcome, err := f.svc.HandleWebhook(context.Background(), "flowpay", []byte(`{"reference":"T1","status":"paid"}`))
	require.NoError(t, err)

	assert.Equal(t, domain.RegistrationKindTeam, outcome.Kind)
	assert.Equal(t, "pending", f.registration(t, domain.CollectionPayments, "T1")["paymentStatus"])
}

func TestReconciler_nonPaidStatusIgnored(t *testing.T) {
	f := newReconcilerFixture(t)
	before, err := f.store.Get(context.Background(), domain.CollectionTeams, "T1")
	require.NoError(t, err)

	outcome, err := f.svc.HandleWebhook(context.Background(), "flowpay", []byte(`{"reference":"T1","status":"failed"}`))
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookResultIgnored, outcome.Result)
	assert.Equal(t, domain.ReportedStatusFailed, outcome.ReportedStatus)
	assert.Equal(t, domain.PaymentStatusPending, outcome.PaymentStatus)

	after, err := f.store.Get(context.Background(), domain.CollectionTeams, "T1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "no store mutation")
	assert.Zero(t, f.emails.paymentCount())
}

func TestReconciler_paidAfterRefundIsIgnored(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	_, err := f.store.Update(ctx, domain.CollectionTeams, "T1", domain.Fields{"paymentStatus": "refunded"})
	require.NoError(t, err)
	before, err := f.store.Get(ctx, domain.CollectionTeams, "T1")
	require.NoError(t, err)

	outcome, err := f.svc.HandleWebhook(ctx, "flowpay", []byte(`{"reference":"T1","status":"paid"}`))
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookResultIgnored, outcome.Result)
	assert.Equal(t, domain.PaymentStatusRefunded, outcome.PaymentStatus)
	after, err := f.store.Get(ctx, domain.CollectionTeams, "T1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "no store mutation")
	assert.Equal(t, "refunded", f.registration(t, domain.CollectionTeams, "T1")["paymentStatus"])
	assert.Zero(t, f.emails.paymentCount())
}

func TestReconciler_paidSettlesFailedAndExpired(t *testing.T) {
	for _, status := range []string{"failed", "expired"} {
		t.Run(status, func(t *testing.T) {
			f := newReconcilerFixture(t)
			_, err := f.store.Update(context.Background(), domain.CollectionTeams, "T1", domain.Fields{"paymentStatus": status})
			require.NoError(t, err)

			outcome, err := f.svc.HandleWebhook(context.Background(), "flowpay", []byte(`{"reference":"T1","status":"paid"}`))
			require.NoError(t, err)

			assert.Equal(t, domain.WebhookResultProcessed, outcome.Result)
			assert.Equal(t, "paid", f.registration(t, domain.CollectionTeams, "T1")["paymentStatus"])
			assert.Equal(t, 1, f.emails.paymentCount())
		})
	}
}

func TestReconciler_errors(t *testing.T) {
	tests := []struct {
		name    string
		gateway string
		body    string
		wantErr error
	}{
		{name: "unknown gateway", gateway: "stripe", body: `{"reference":"T1"}`, wantErr: domain.ErrUnknownGateway},
		{name: "invalid json", gateway: "flowpay", body: `{"charge":`, wantErr: domain.ErrInvalidPayload},
		{name: "missing reference", gateway: "flowpay", body: `{"charge":{"status":"paid"}}`, wantErr: domain.ErrMissingReference},
		{name: "unknown reference", gateway: "flowpay", body: `{"reference":"ZZZ","status":"paid"}`, wantErr: domain.ErrNotFound},
		{name: "openpix missing reference", gateway: "openpix", body: `{"event":"OPENPIX:CHARGE_COMPLETED"}`, wantErr: domain.ErrMissingReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture(t)

			outcome, err := f.svc.HandleWebhook(context.Background(), tt.gateway, []byte(tt.body))
			assert.Nil(t, outcome)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, "pending", f.registration(t, domain.CollectionTeams, "T1")["paymentStatus"])
			assert.Zero(t, f.emails.paymentCount())
		})
	}
}

func TestReconciler_notificationFailureSwallowed(t *testing.T) {
	f := newReconcilerFixture(t)
	f.emails.err = errors.New("smtp down")

	outcome, err := f.svc.HandleWebhook(context.Background(), "flowpay", []byte(`{"reference":"T1","status":"paid"}`))
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookResultProcessed, outcome.Result)
	assert.Equal(t, "paid", f.registration(t, domain.CollectionTeams, "T1")["paymentStatus"])
	assert.Equal(t, 1, f.emails.paymentCount())
}

func TestReconciler_notificationSurvivesCancelledRequest(t *testing.T) {
	f := newReconcilerFixture(t)
	var notifyErr error
	emails := &ctxCheckingEmailService{onSend: func(ctx context.Context) { notifyErr = ctx.Err() }}
	svc := NewReconcilerService(f.store, gateway.DefaultRegistry(), emails, discardLogger(), nil, ReconcilerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	emails.beforeSend = cancel
	_, err := svc.HandleWebhook(ctx, "flowpay", []byte(`{"reference":"T1","status":"paid"}`))
	require.NoError(t, err)
	assert.NoError(t, notifyErr)
}

type ctxCheckingEmailService struct {
	fakeEmailService
	beforeSend func()
	onSend     func(ctx context.Context)
}

func (c *ctxCheckingEmailService) SendPaymentConfirmation(ctx context.Context, data *domain.PaymentConfirmationEmailData) error {
	if c.beforeSend != nil {
		c.beforeSend()
	}
	c.onSend(ctx)
	return nil
}

func TestReconciler_storeFailure(t *testing.T) {
	f := newReconcilerFixture(t)
	f.store.FailWith(errors.New("connection refused"))

	_, err := f.svc.HandleWebhook(context.Background(), "flowpay", []byte(`{"reference":"T1","status":"paid"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorContains(t, err, "connection refused")
}

func TestReconciler_writeFailure(t *testing.T) {
	f := newReconcilerFixture(t)
	store := &writeFailingStore{EntityStore: f.store, err: errors.New("disk full")}
	svc := NewReconcilerService(store, gateway.DefaultRegistry(), f.emails, discardLogger(), nil, ReconcilerConfig{})

	_, err := svc.HandleWebhook(context.Background(), "flowpay", []byte(`{"reference":"T1","status":"paid"}`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, f.emails.paymentCount())
}

func TestReconciler_concurrentDeliveriesNotifyOnce(t *testing.T) {
	f := newReconcilerFixture(t)
	body := []byte(`{"charge":{"reference":"T1","status":"paid"}}`)

	const deliveries = 8
	results := make(chan domain.WebhookResult, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.svc.HandleWebhook(context.Background(), "flowpay", body)
			if assert.NoError(t, err) {
				results <- outcome.Result
			}
		}()
	}
	wg.Wait()
	close(results)

	processed := 0
	for r := range results {
		if r == domain.WebhookResultProcessed {
			processed++
		} else {
			assert.Equal(t, domain.WebhookResultNoop, r)
		}
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, f.emails.paymentCount())
}

func TestRegistrationService_GetRegistration(t *testing.T) {
	store := memory.NewStore()
	seedRegistrations(t, store)
	svc := NewRegistrationService(store, time.Second)
	ctx := context.Background()

	reg, err := svc.GetRegistration(ctx, domain.RegistrationKindTeam, "T1")
	require.NoError(t, err)
	team, ok := reg.(*domain.Team)
	require.True(t, ok)
	assert.Equal(t, "T1", team.ID)
	assert.Equal(t, "Runners", team.Name)
	assert.Equal(t, domain.PaymentStatusPending, team.PaymentStatus)

	_, err = svc.GetRegistration(ctx, domain.RegistrationKindTeam, "A7")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetRegistration(ctx, "sponsor", "T1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.GetRegistration(ctx, domain.RegistrationKindPayment, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
