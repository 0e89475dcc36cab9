package controllers

import (
	"log/slog"
	"net/http"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
)

// MeResponse is the data payload of GET /me.
// swagger:model MeResponse
type MeResponse struct {
	Anonymous bool             `json:"anonymous"`
	Identity  *domain.Identity `json:"identity,omitempty"`
}

// IdentityController reports who the caller is.
type IdentityController struct {
	Logger *slog.Logger
}

func NewIdentityController(logger *slog.Logger) *IdentityController {
	return &IdentityController{Logger: logger}
}

// Me godoc
// @Summary Current identity
// @Description Returns the identity behind the bearer token, or anonymous when the token is missing or cannot be verified.
// @Tags identity
// @Produce json
// @Param Authorization header string false "Bearer token"
// @Success 200 {object} helpers.APIResponse{data=controllers.MeResponse}
// @Router /me [get]
func (c *IdentityController) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONSuccess(w, http.StatusOK, MeResponse{Anonymous: true})
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, MeResponse{Identity: identity})
}
