package http

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"eventregistration/internal/delivery/http/controllers"
	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
)

// RouterDeps holds everything NewRouter wires into routes.
type RouterDeps struct {
	Logger        *slog.Logger
	Authenticator domain.Authenticator
	WebhookSecret string
	Gatherer      prometheus.Gatherer

	Webhooks      *controllers.WebhookController
	Invitations   *controllers.InvitationController
	Registrations *controllers.RegistrationController
	Identity      *controllers.IdentityController
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(d RouterDeps) *http.ServeMux {
	mux := http.NewServeMux()
	requireAuth := middleware.RequireAuth(d.Authenticator, d.Logger)
	optionalAuth := middleware.OptionalAuth(d.Authenticator)
	webhookToken := middleware.RequireWebhookToken(d.WebhookSecret, d.Logger)

	// Payment webhooks
	mux.HandleFunc("POST /webhook/payment", webhookToken(d.Webhooks.HandleDefaultPayment))
	mux.HandleFunc("POST /webhook/payment/{gateway}", webhookToken(d.Webhooks.HandlePayment))

	// Identity
	mux.HandleFunc("GET /me", optionalAuth(d.Identity.Me))

	// Registrations
	mux.HandleFunc("GET /registrations/{kind}/{id}", requireAuth(d.Registrations.GetRegistration))

	// Team invitations
	mux.HandleFunc("POST /teams/{teamID}/invites", requireAuth(d.Invitations.CreateInvite))
	mux.HandleFunc("GET /teams/{teamID}/invites", requireAuth(d.Invitations.ListTeamInvites))
	mux.HandleFunc("GET /invites/me", requireAuth(d.Invitations.ListMyInvites))
	mux.HandleFunc("POST /invites/{inviteID}/accept", requireAuth(d.Invitations.AcceptInvite))
	mux.HandleFunc("POST /invites/{inviteID}/decline", requireAuth(d.Invitations.DeclineInvite))
	mux.HandleFunc("POST /invites/{inviteID}/cancel", requireAuth(d.Invitations.CancelInvite))

	// Operations
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
