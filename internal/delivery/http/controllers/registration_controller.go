package controllers

import (
	"log/slog"
	"net/http"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/domain"
)

// RegistrationController serves read access to registrations so payers can poll their payment status.
type RegistrationController struct {
	Logger  *slog.Logger
	Service domain.RegistrationService
}

// NewRegistrationController creates a RegistrationController with the given logger and service.
func NewRegistrationController(logger *slog.Logger, svc domain.RegistrationService) *RegistrationController {
	return &RegistrationController{
		Logger:  logger,
		Service: svc,
	}
}

// GetRegistration godoc
// @Summary Get a registration
// @Description Returns a team, audiovisual application or generic payment with its current payment status.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param kind path string true "Registration kind" Enums(team, audiovisual, payment)
// @Param id path string true "Registration ID"
// @Success 200 {object} helpers.APIResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /registrations/{kind}/{id} [get]
func (c *RegistrationController) GetRegistration(w http.ResponseWriter, r *http.Request) {
	kind := domain.RegistrationKind(r.PathValue("kind"))
	reg, err := c.Service.GetRegistration(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}
