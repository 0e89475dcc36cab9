package domain

import "errors"

// Sentinel errors shared by services, stores and controllers.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrAlreadyExists      = errors.New("already exists")
	ErrPreconditionFailed = errors.New("document version mismatch")
)

// Webhook errors.
var (
	ErrUnknownGateway   = errors.New("unknown payment gateway")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrMissingReference = errors.New("missing reference")
)

// Invitation errors.
var (
	ErrConflict           = errors.New("a pending invitation already exists")
	ErrAlreadyResolved    = errors.New("invitation already resolved")
	ErrInviteExpired      = errors.New("invitation expired")
	ErrAlreadyMember      = errors.New("already a team member")
	ErrRosterUpdateFailed = errors.New("team roster update failed")
)
