package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CredentialCacheHits      prometheus.Counter
	CredentialCacheMisses    prometheus.Counter
	CredentialVerifyFailures prometheus.Counter
	CredentialEvictions      prometheus.Counter
	CredentialEntries        prometheus.Gauge
	WebhookOutcomes          *prometheus.CounterVec
	InvitationTransitions    *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CredentialCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "eventregistration_credential_cache_hits_total",
			Help: "Authentications answered from the credential cache",
		}),
		CredentialCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "eventregistration_credential_cache_misses_total",
			Help: "Authentications that required a call to the identity verifier",
		}),
		CredentialVerifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "eventregistration_credential_verify_failures_total",
			Help: "Identity verifier calls that failed or timed out",
		}),
		CredentialEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "eventregistration_credential_cache_evictions_total",
			Help: "Credential cache entries removed by expiry or size bound",
		}),
		CredentialEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "eventregistration_credential_cache_entries",
			Help: "Current number of credential cache entries",
		}),
		WebhookOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventregistration_webhook_outcomes_total",
			Help: "Payment webhook deliveries by gateway and result",
		}, []string{"gateway", "result"}),
		InvitationTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventregistration_invitation_transitions_total",
			Help: "Team invitation state transitions by resulting status",
		}, []string{"status"}),
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CredentialCacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CredentialCacheMisses.Inc()
	}
}

func (m *Metrics) VerifyFailure() {
	if m != nil {
		m.CredentialVerifyFailures.Inc()
	}
}

func (m *Metrics) Evicted(n int) {
	if m != nil && n > 0 {
		m.CredentialEvictions.Add(float64(n))
	}
}

func (m *Metrics) SetCacheEntries(n int) {
	if m != nil {
		m.CredentialEntries.Set(float64(n))
	}
}

func (m *Metrics) WebhookOutcome(gateway, result string) {
	if m != nil {
		m.WebhookOutcomes.WithLabelValues(gateway, result).Inc()
	}
}

func (m *Metrics) InvitationTransition(status string) {
	if m != nil {
		m.InvitationTransitions.WithLabelValues(status).Inc()
	}
}
