package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInvitationService implements domain.InvitationService for handler tests.
type fakeInvitationService struct {
	invitation *domain.TeamInvitation
	list       []*domain.TeamInvitation
	err        error

	lastTeamID    string
	lastEmail     string
	lastCaptainID string
	lastInviteID  string
	lastResponder *domain.Identity
	lastDecision  domain.InvitationStatus
}

func (f *fakeInvitationService) CreateInvite(ctx context.Context, teamID, invitedEmail, captainID string) (*domain.TeamInvitation, error) {
	f.lastTeamID, f.lastEmail, f.lastCaptainID = teamID, invitedEmail, captainID
	return f.invitation, f.err
}

func (f *fakeInvitationService) RespondToInvite(ctx context.Context, inviteID string, responder *domain.Identity, decision domain.InvitationStatus) (*domain.TeamInvitation, error) {
	f.lastInviteID, f.lastResponder, f.lastDecision = inviteID, responder, decision
	return f.invitation, f.err
}

func (f *fakeInvitationService) AcceptInvite(ctx context.Context, inviteID string, responder *domain.Identity) (*domain.TeamInvitation, error) {
	return f.RespondToInvite(ctx, inviteID, responder, domain.InvitationAccepted)
}

func (f *fakeInvitationService) DeclineInvite(ctx context.Context, inviteID string, responder *domain.Identity) (*domain.TeamInvitation, error) {
	return f.RespondToInvite(ctx, inviteID, responder, domain.InvitationDeclined)
}

func (f *fakeInvitationService) CancelInvite(ctx context.Context, inviteID, captainID string) (*domain.TeamInvitation, error) {
	f.lastInviteID, f.lastCaptainID = inviteID, captainID
	return f.invitation, f.err
}

func (f *fakeInvitationService) ListMyPendingInvites(ctx context.Context, email string) ([]*domain.TeamInvitation, error) {
	f.lastEmail = email
	return f.list, f.err
}

func (f *fakeInvitationService) ListTeamInvites(ctx context.Context, teamID, captainID string) ([]*domain.TeamInvitation, error) {
	f.lastTeamID, f.lastCaptainID = teamID, captainID
	return f.list, f.err
}

var (
	captainIdentity = &domain.Identity{UserID: "cap-1", Email: "cap@example.com"}
	inviteeIdentity = &domain.Identity{UserID: "user-2", Email: "bia@example.com"}
)

func sampleInvitation(status domain.InvitationStatus) *domain.TeamInvitation {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.TeamInvitation{
		ID:           "inv-1",
		TeamID:       "T1",
		TeamName:     "Os Velozes",
		CaptainID:    "cap-1",
		InvitedEmail: "bia@example.com",
		Status:       status,
		CreatedAt:    created,
		ExpiresAt:    created.Add(7 * 24 * time.Hour),
		UpdatedAt:    created,
	}
}

func invitationMux(ctrl *InvitationController) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /teams/{teamID}/invites", ctrl.CreateInvite)
	mux.HandleFunc("GET /teams/{teamID}/invites", ctrl.ListTeamInvites)
	mux.HandleFunc("GET /invites/me", ctrl.ListMyInvites)
	mux.HandleFunc("POST /invites/{inviteID}/accept", ctrl.AcceptInvite)
	mux.HandleFunc("POST /invites/{inviteID}/decline", ctrl.DeclineInvite)
	mux.HandleFunc("POST /invites/{inviteID}/cancel", ctrl.CancelInvite)
	return mux
}

func serveAs(mux http.Handler, identity *domain.Identity, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if identity != nil {
		req = req.WithContext(middleware.SetIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestInvitationController_CreateInvite(t *testing.T) {
	svc := &fakeInvitationService{invitation: sampleInvitation(domain.InvitationPending)}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	rec := serveAs(mux, captainIdentity, http.MethodPost, "/teams/T1/invites", `{"email":"bia@example.com"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "T1", svc.lastTeamID)
	assert.Equal(t, "bia@example.com", svc.lastEmail)
	assert.Equal(t, "cap-1", svc.lastCaptainID)

	var resp InvitationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Data)
	assert.Equal(t, "inv-1", resp.Data.ID)
	assert.Equal(t, domain.InvitationPending, resp.Data.Status)
}

func TestInvitationController_CreateInvite_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"missing email", `{}`},
		{"invalid email", `{"email":"not-an-email"}`},
		{"unknown field", `{"email":"bia@example.com","role":"captain"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeInvitationService{}
			mux := invitationMux(NewInvitationController(testLogger, svc))

			rec := serveAs(mux, captainIdentity, http.MethodPost, "/teams/T1/invites", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.lastTeamID, "service must not be called")
		})
	}
}

func TestInvitationController_CreateInvite_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not captain", domain.ErrForbidden, http.StatusForbidden, helpers.ErrCodeForbidden},
		{"team missing", fmt.Errorf("team T9: %w", domain.ErrNotFound), http.StatusNotFound, helpers.ErrCodeNotFound},
		{"pending exists", domain.ErrConflict, http.StatusConflict, helpers.ErrCodeConflict},
		{"already member", domain.ErrAlreadyMember, http.StatusConflict, helpers.ErrCodeAlreadyMember},
		{"store down", fmt.Errorf("create invitation: boom"), http.StatusInternalServerError, helpers.ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeInvitationService{err: tt.err}
			mux := invitationMux(NewInvitationController(testLogger, svc))

			rec := serveAs(mux, captainIdentity, http.MethodPost, "/teams/T1/invites", `{"email":"bia@example.com"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeEnvelope(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestInvitationController_Unauthenticated(t *testing.T) {
	svc := &fakeInvitationService{}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	requests := []struct{ method, target, body string }{
		{http.MethodPost, "/teams/T1/invites", `{"email":"bia@example.com"}`},
		{http.MethodGet, "/teams/T1/invites", ""},
		{http.MethodGet, "/invites/me", ""},
		{http.MethodPost, "/invites/inv-1/accept", ""},
		{http.MethodPost, "/invites/inv-1/decline", ""},
		{http.MethodPost, "/invites/inv-1/cancel", ""},
	}
	for _, r := range requests {
		t.Run(r.method+" "+r.target, func(t *testing.T) {
			rec := serveAs(mux, nil, r.method, r.target, r.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestInvitationController_AcceptInvite(t *testing.T) {
	svc := &fakeInvitationService{invitation: sampleInvitation(domain.InvitationAccepted)}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	rec := serveAs(mux, inviteeIdentity, http.MethodPost, "/invites/inv-1/accept", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inv-1", svc.lastInviteID)
	assert.Equal(t, domain.InvitationAccepted, svc.lastDecision)
	assert.Same(t, inviteeIdentity, svc.lastResponder)
}

func TestInvitationController_DeclineInvite(t *testing.T) {
	svc := &fakeInvitationService{invitation: sampleInvitation(domain.InvitationDeclined)}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	rec := serveAs(mux, inviteeIdentity, http.MethodPost, "/invites/inv-1/decline", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.InvitationDeclined, svc.lastDecision)
}

func TestInvitationController_Respond_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"expired", domain.ErrInviteExpired, http.StatusGone, helpers.ErrCodeExpired},
		{"resolved", domain.ErrAlreadyResolved, http.StatusConflict, helpers.ErrCodeAlreadyResolved},
		{"wrong email", domain.ErrForbidden, http.StatusForbidden, helpers.ErrCodeForbidden},
		{"missing", domain.ErrNotFound, http.StatusNotFound, helpers.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeInvitationService{err: tt.err}
			mux := invitationMux(NewInvitationController(testLogger, svc))

			rec := serveAs(mux, inviteeIdentity, http.MethodPost, "/invites/inv-1/accept", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeEnvelope(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestInvitationController_AcceptInvite_rosterFailure(t *testing.T) {
	svc := &fakeInvitationService{
		invitation: sampleInvitation(domain.InvitationAccepted),
		err:        fmt.Errorf("%w: team T1: timeout", domain.ErrRosterUpdateFailed),
	}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	rec := serveAs(mux, inviteeIdentity, http.MethodPost, "/invites/inv-1/accept", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, helpers.ErrCodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "roster")
}

func TestInvitationController_CancelInvite(t *testing.T) {
	svc := &fakeInvitationService{invitation: sampleInvitation(domain.InvitationCancelled)}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	rec := serveAs(mux, captainIdentity, http.MethodPost, "/invites/inv-1/cancel", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inv-1", svc.lastInviteID)
	assert.Equal(t, "cap-1", svc.lastCaptainID)
}

func TestInvitationController_ListMyInvites(t *testing.T) {
	svc := &fakeInvitationService{list: []*domain.TeamInvitation{sampleInvitation(domain.InvitationPending)}}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	rec := serveAs(mux, inviteeIdentity, http.MethodGet, "/invites/me", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bia@example.com", svc.lastEmail)

	var resp InvitationListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, 1, resp.Data.Pagination.Total)
	assert.Equal(t, 1, resp.Data.Pagination.TotalPages)
}

func TestInvitationController_ListTeamInvites_pagination(t *testing.T) {
	var list []*domain.TeamInvitation
	for i := range 5 {
		inv := sampleInvitation(domain.InvitationDeclined)
		inv.ID = fmt.Sprintf("inv-%d", i+1)
		list = append(list, inv)
	}
	svc := &fakeInvitationService{list: list}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	rec := serveAs(mux, captainIdentity, http.MethodGet, "/teams/T1/invites?page=2&page_size=2", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "T1", svc.lastTeamID)
	assert.Equal(t, "cap-1", svc.lastCaptainID)

	var resp InvitationListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data.Items, 2)
	assert.Equal(t, "inv-3", resp.Data.Items[0].ID)
	assert.Equal(t, "inv-4", resp.Data.Items[1].ID)
	assert.Equal(t, helpers.PaginationMeta{Page: 2, PageSize: 2, Total: 5, TotalPages: 3}, resp.Data.Pagination)
}

func TestInvitationController_ListTeamInvites_pageBeyondEnd(t *testing.T) {
	svc := &fakeInvitationService{list: []*domain.TeamInvitation{sampleInvitation(domain.InvitationPending)}}
	mux := invitationMux(NewInvitationController(testLogger, svc))

	rec := serveAs(mux, captainIdentity, http.MethodGet, "/teams/T1/invites?page=9", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp InvitationListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Data.Items)
	assert.Equal(t, 1, resp.Data.Pagination.Total)
}
