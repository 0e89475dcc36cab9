package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"eventregistration/internal/delivery/http/helpers"
	"eventregistration/internal/domain"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: the first matching sentinel wins.
var serviceErrors = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, helpers.ErrCodeBadRequest, ""},
	{domain.ErrUnknownGateway, http.StatusBadRequest, helpers.ErrCodeBadRequest, ""},
	{domain.ErrInvalidPayload, http.StatusBadRequest, helpers.ErrCodeBadRequest, ""},
	{domain.ErrMissingReference, http.StatusBadRequest, helpers.ErrCodeBadRequest, ""},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, helpers.ErrCodeForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, helpers.ErrCodeNotFound, "not found"},
	{domain.ErrConflict, http.StatusConflict, helpers.ErrCodeConflict, "a pending invitation already exists for this email"},
	{domain.ErrAlreadyMember, http.StatusConflict, helpers.ErrCodeAlreadyMember, "already a team member"},
	{domain.ErrAlreadyResolved, http.StatusConflict, helpers.ErrCodeAlreadyResolved, "invitation already resolved"},
	{domain.ErrInviteExpired, http.StatusGone, helpers.ErrCodeExpired, "invitation expired"},
}

// writeServiceError maps a service error to the response envelope. Unmapped errors are
// logged and reported as 500 without their detail. An empty mapping message means the
// error text is safe to return as is.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			helpers.WriteJSONError(w, m.status, m.code, msg)
			return
		}
	}
	logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
	helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "internal server error")
}
