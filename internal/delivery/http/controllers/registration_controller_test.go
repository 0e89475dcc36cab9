package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrationService struct {
	reg      domain.Registration
	err      error
	lastKind domain.RegistrationKind
	lastID   string
}

func (f *fakeRegistrationService) GetRegistration(ctx context.Context, kind domain.RegistrationKind, id string) (domain.Registration, error) {
	f.lastKind, f.lastID = kind, id
	return f.reg, f.err
}

func registrationMux(ctrl *RegistrationController) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /registrations/{kind}/{id}", ctrl.GetRegistration)
	return mux
}

func TestRegistrationController_GetRegistration(t *testing.T) {
	team := &domain.Team{
		RegistrationBase: domain.RegistrationBase{ID: "T1", PaymentStatus: domain.PaymentStatusPaid, AmountCents: 15000},
		Name:             "Os Velozes",
		CaptainID:        "cap-1",
	}
	svc := &fakeRegistrationService{reg: team}
	mux := registrationMux(NewRegistrationController(testLogger, svc))

	req := httptest.NewRequest(http.MethodGet, "/registrations/team/T1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RegistrationKindTeam, svc.lastKind)
	assert.Equal(t, "T1", svc.lastID)

	var resp struct {
		Data domain.Team `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, domain.PaymentStatusPaid, resp.Data.PaymentStatus)
	assert.Equal(t, "Os Velozes", resp.Data.Name)
}

func TestRegistrationController_GetRegistration_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown kind", fmt.Errorf("%w: unknown registration kind %q", domain.ErrInvalidInput, "vip"), http.StatusBadRequest, helpers.ErrCodeBadRequest},
		{"not found", fmt.Errorf("get teams/T9: %w", domain.ErrNotFound), http.StatusNotFound, helpers.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeRegistrationService{err: tt.err}
			mux := registrationMux(NewRegistrationController(testLogger, svc))

			req := httptest.NewRequest(http.MethodGet, "/registrations/team/T9", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeEnvelope(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestIdentityController_Me(t *testing.T) {
	ctrl := NewIdentityController(testLogger)

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		rec := httptest.NewRecorder()
		ctrl.Me(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data MeResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Data.Anonymous)
		assert.Nil(t, resp.Data.Identity)
	})

	t.Run("authenticated", func(t *testing.T) {
		identity := &domain.Identity{UserID: "u-1", Email: "ana@example.com", Roles: []string{"captain"}}
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req = req.WithContext(middleware.SetIdentity(req.Context(), identity))
		rec := httptest.NewRecorder()
		ctrl.Me(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data MeResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.Data.Anonymous)
		require.NotNil(t, resp.Data.Identity)
		assert.Equal(t, "u-1", resp.Data.Identity.UserID)
		assert.Equal(t, []string{"captain"}, resp.Data.Identity.Roles)
	})
}
