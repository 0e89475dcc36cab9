package controllers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/domain"
)

// MaxWebhookBodyBytes caps the size of a gateway callback body.
const MaxWebhookBodyBytes = 1 << 20

// WebhookOutcomeResponse is the success response envelope for the payment webhooks (200).
type WebhookOutcomeResponse struct {
	Data  *domain.WebhookOutcome `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

// WebhookController receives payment gateway callbacks.
type WebhookController struct {
	Logger         *slog.Logger
	Service        domain.ReconcilerService
	DefaultGateway string
}

// NewWebhookController creates a WebhookController. defaultGateway serves POST /webhook/payment.
func NewWebhookController(logger *slog.Logger, svc domain.ReconcilerService, defaultGateway string) *WebhookController {
	return &WebhookController{
		Logger:         logger,
		Service:        svc,
		DefaultGateway: defaultGateway,
	}
}

// HandlePayment godoc
// @Summary Payment gateway callback
// @Description Reconciles a gateway callback with the referenced registration. A reported payment moves the registration to paid exactly once; redeliveries and other statuses return 200 without side effects. When a webhook secret is configured the X-Webhook-Token header must carry it.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param gateway path string true "Gateway name (flowpay, openpix)"
// @Param X-Webhook-Token header string false "Shared webhook secret"
// @Success 200 {object} controllers.WebhookOutcomeResponse "data.result is processed, noop or ignored"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /webhook/payment/{gateway} [post]
func (c *WebhookController) HandlePayment(w http.ResponseWriter, r *http.Request) {
	gateway := r.PathValue("gateway")
	if gateway == "" {
		gateway = c.DefaultGateway
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			helpers.WriteJSONError(w, http.StatusRequestEntityTooLarge, helpers.ErrCodeBadRequest, "payload too large")
			return
		}
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "could not read request body")
		return
	}

	outcome, err := c.Service.HandleWebhook(r.Context(), gateway, body)
	if err != nil {
		writeServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, outcome)
}

// HandleDefaultPayment godoc
// @Summary Payment callback for the default gateway
// @Description Same as /webhook/payment/{gateway} using the configured default gateway.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Token header string false "Shared webhook secret"
// @Success 200 {object} controllers.WebhookOutcomeResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /webhook/payment [post]
func (c *WebhookController) HandleDefaultPayment(w http.ResponseWriter, r *http.Request) {
	c.HandlePayment(w, r)
}
