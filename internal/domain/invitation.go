package domain

import (
	"context"
	"time"
)

// InvitationStatus is the state of a team invitation. Every status except
// pending is terminal.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pendente"
	InvitationAccepted  InvitationStatus = "aceito"
	InvitationDeclined  InvitationStatus = "recusado"
	InvitationCancelled InvitationStatus = "cancelado"
	InvitationExpired   InvitationStatus = "expirado"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s InvitationStatus) IsTerminal() bool {
	return s != InvitationPending
}

// TeamInvitation is an offer from a team captain to an email address.
// swagger:model TeamInvitation
type TeamInvitation struct {
	ID           string           `json:"id"`
	TeamID       string           `json:"teamId"`
	TeamName     string           `json:"teamName"`
	CaptainID    string           `json:"captainId"`
	InvitedEmail string           `json:"invitedEmail"`
	Status       InvitationStatus `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	RespondedAt  *time.Time       `json:"respondedAt,omitempty"`
	RespondedBy  string           `json:"respondedBy,omitempty"`
}

// IsExpiredAt reports whether the invitation's window has passed at now.
func (i *TeamInvitation) IsExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// EffectiveStatus is the status a reader should see at now: a pending invitation
// whose window has passed reads as expired even if the stored field says pending.
func (i *TeamInvitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && i.IsExpiredAt(now) {
		return InvitationExpired
	}
	return i.Status
}

// InvitationSlot points at the invitation that currently holds a (team, email) pair.
// An empty InvitationID means the slot was released.
type InvitationSlot struct {
	TeamID       string    `json:"teamId"`
	InvitedEmail string    `json:"invitedEmail"`
	InvitationID string    `json:"invitationId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// InvitationService is the team invitation state machine.
type InvitationService interface {
	CreateInvite(ctx context.Context, teamID, invitedEmail, captainID string) (*TeamInvitation, error)
	// RespondToInvite resolves a pending invitation with InvitationAccepted or InvitationDeclined.
	RespondToInvite(ctx context.Context, inviteID string, responder *Identity, decision InvitationStatus) (*TeamInvitation, error)
	AcceptInvite(ctx context.Context, inviteID string, responder *Identity) (*TeamInvitation, error)
	DeclineInvite(ctx context.Context, inviteID string, responder *Identity) (*TeamInvitation, error)
	CancelInvite(ctx context.Context, inviteID, captainID string) (*TeamInvitation, error)
	ListMyPendingInvites(ctx context.Context, email string) ([]*TeamInvitation, error)
	ListTeamInvites(ctx context.Context, teamID, captainID string) ([]*TeamInvitation, error)
}
