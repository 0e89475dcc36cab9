package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
)

var validate = validator.New()

// CreateInviteRequest is the request body for POST /teams/{teamID}/invites
type CreateInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Validate implements Validator.
func (req CreateInviteRequest) Validate() []string {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return []string{"email is required"}
	}
	if err := validate.Var(email, "email"); err != nil {
		return []string{"invalid email format"}
	}
	return nil
}

// InvitationResponse is the success response envelope for single invitation endpoints.
type InvitationResponse struct {
	Data  *domain.TeamInvitation `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

// InvitationListData is the data payload of invitation list endpoints.
type InvitationListData struct {
	Items      []*domain.TeamInvitation `json:"items"`
	Pagination helpers.PaginationMeta   `json:"pagination"`
}

// InvitationListResponse is the success response envelope for invitation list endpoints.
type InvitationListResponse struct {
	Data  InvitationListData `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

// InvitationController handles team invitation endpoints. Every route requires authentication.
type InvitationController struct {
	Logger  *slog.Logger
	Service domain.InvitationService
}

// NewInvitationController creates an InvitationController with the given logger and service.
func NewInvitationController(logger *slog.Logger, svc domain.InvitationService) *InvitationController {
	return &InvitationController{
		Logger:  logger,
		Service: svc,
	}
}

// CreateInvite godoc
// @Summary Invite someone to a team
// @Description The team captain invites an email address. At most one pending invitation may exist per team and email; it expires after the configured window.
// @Tags invitations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param teamID path string true "Team ID"
// @Param body body CreateInviteRequest true "Invitee email"
// @Success 201 {object} controllers.InvitationResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict or already_member"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /teams/{teamID}/invites [post]
func (c *InvitationController) CreateInvite(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	var req CreateInviteRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	inv, err := c.Service.CreateInvite(r.Context(), r.PathValue("teamID"), req.Email, identity.UserID)
	if err != nil {
		writeServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, inv)
}

// ListTeamInvites godoc
// @Summary List a team's invitations
// @Description Captain view of every invitation the team sent. Overdue pending invitations are reported as expirado.
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param teamID path string true "Team ID"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.InvitationListResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /teams/{teamID}/invites [get]
func (c *InvitationController) ListTeamInvites(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	invites, err := c.Service.ListTeamInvites(r.Context(), r.PathValue("teamID"), identity.UserID)
	if err != nil {
		writeServiceError(w, r, c.Logger, err)
		return
	}
	writeInvitationPage(w, r, invites)
}

// ListMyInvites godoc
// @Summary List my pending invitations
// @Description Pending invitations addressed to the caller's email that have not expired.
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.InvitationListResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /invites/me [get]
func (c *InvitationController) ListMyInvites(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	invites, err := c.Service.ListMyPendingInvites(r.Context(), identity.Email)
	if err != nil {
		writeServiceError(w, r, c.Logger, err)
		return
	}
	writeInvitationPage(w, r, invites)
}

// AcceptInvite godoc
// @Summary Accept an invitation
// @Description The invitee accepts and joins the team roster. An overdue invitation is marked expirado and the call fails with 410.
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param inviteID path string true "Invitation ID"
// @Success 200 {object} controllers.InvitationResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: already_resolved"
// @Failure 410 {object} helpers.APIResponse "error.code: expired"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /invites/{inviteID}/accept [post]
func (c *InvitationController) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	c.respond(w, r, c.Service.AcceptInvite)
}

// DeclineInvite godoc
// @Summary Decline an invitation
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param inviteID path string true "Invitation ID"
// @Success 200 {object} controllers.InvitationResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: already_resolved"
// @Failure 410 {object} helpers.APIResponse "error.code: expired"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /invites/{inviteID}/decline [post]
func (c *InvitationController) DeclineInvite(w http.ResponseWriter, r *http.Request) {
	c.respond(w, r, c.Service.DeclineInvite)
}

// CancelInvite godoc
// @Summary Cancel an invitation
// @Description Only the captain who sent a pending invitation may cancel it.
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param inviteID path string true "Invitation ID"
// @Success 200 {object} controllers.InvitationResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: already_resolved"
// @Failure 410 {object} helpers.APIResponse "error.code: expired"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /invites/{inviteID}/cancel [post]
func (c *InvitationController) CancelInvite(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	inv, err := c.Service.CancelInvite(r.Context(), r.PathValue("inviteID"), identity.UserID)
	if err != nil {
		writeServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, inv)
}

type respondFunc func(ctx context.Context, inviteID string, responder *domain.Identity) (*domain.TeamInvitation, error)

func (c *InvitationController) respond(w http.ResponseWriter, r *http.Request, fn respondFunc) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	inviteID := r.PathValue("inviteID")
	inv, err := fn(r.Context(), inviteID, identity)
	if errors.Is(err, domain.ErrRosterUpdateFailed) {
		c.Logger.ErrorContext(r.Context(), "invitation accepted without roster update", "invitation_id", inviteID, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "invitation accepted but the team roster could not be updated")
		return
	}
	if err != nil {
		writeServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, inv)
}

func writeInvitationPage(w http.ResponseWriter, r *http.Request, invites []*domain.TeamInvitation) {
	items, meta := helpers.Paginate(r, invites)
	helpers.WriteJSONSuccess(w, http.StatusOK, InvitationListData{Items: items, Pagination: meta})
}
