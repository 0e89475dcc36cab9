package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
)

const DefaultInviteTTL = 7 * 24 * time.Hour

// Invitation and team field names written with partial updates.
const (
	fieldStatus       = "status"
	fieldRespondedAt  = "respondedAt"
	fieldRespondedBy  = "respondedBy"
	fieldInvitationID = "invitationId"
	fieldInvitedEmail = "invitedEmail"
	fieldTeamID       = "teamId"
	fieldMembers      = "members"
)

// InvitationConfig tunes the invitation service. Zero values fall back to the defaults.
type InvitationConfig struct {
	TTL           time.Duration
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
	Now           func() time.Time
	NewID         func() string
}

type invitationService struct {
	store         domain.EntityStore
	emails        domain.EmailService
	logger        *slog.Logger
	metrics       *metrics.Metrics
	validate      *validator.Validate
	ttl           time.Duration
	storeTimeout  time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
	newID         func() string
}

// NewInvitationService returns the team invitation state machine. emails may be nil.
func NewInvitationService(store domain.EntityStore, emails domain.EmailService, logger *slog.Logger, m *metrics.Metrics, cfg InvitationConfig) domain.InvitationService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultInviteTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &invitationService{
		store:         store,
		emails:        emails,
		logger:        logger,
		metrics:       m,
		validate:      validator.New(),
		ttl:           cfg.TTL,
		storeTimeout:  cfg.StoreTimeout,
		notifyTimeout: cfg.NotifyTimeout,
		now:           cfg.Now,
		newID:         cfg.NewID,
	}
}

// NormalizeEmail trims and lower-cases an address so invitations compare by mailbox.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func slotID(teamID, email string) string {
	return teamID + ":" + email
}

// CreateInvite opens a pendente invitation from the team's captain to invitedEmail.
func (s *invitationService) CreateInvite(ctx context.Context, teamID, invitedEmail, captainID string) (*domain.TeamInvitation, error) {
	teamID = strings.TrimSpace(teamID)
	email := NormalizeEmail(invitedEmail)
	if teamID == "" {
		return nil, fmt.Errorf("%w: team id is required", domain.ErrInvalidInput)
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", domain.ErrInvalidInput, invitedEmail)
	}

	team, _, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.CaptainID != captainID {
		return nil, fmt.Errorf("team %s: %w", teamID, domain.ErrForbidden)
	}
	if strings.EqualFold(team.CaptainEmail, email) || team.HasMember("", email) {
		return nil, fmt.Errorf("team %s: %w", teamID, domain.ErrAlreadyMember)
	}

	now := s.now().UTC()
	inv := &domain.TeamInvitation{
		ID:           s.newID(),
		TeamID:       teamID,
		TeamName:     team.Name,
		CaptainID:    captainID,
		InvitedEmail: email,
		Status:       domain.InvitationPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		UpdatedAt:    now,
	}
	fields, err := domain.FieldsOf(inv)
	if err != nil {
		return nil, fmt.Errorf("encode invitation: %w", err)
	}
	slotVersion, err := s.claimSlot(ctx, inv)
	if err != nil {
		return nil, err
	}
	if _, err := s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
		return s.store.Create(ctx, domain.CollectionInvitations, inv.ID, fields)
	}); err != nil {
		s.releaseSlot(ctx, inv, slotVersion)
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.metrics.InvitationTransition(string(domain.InvitationPending))
	s.logger.InfoContext(ctx, "team invitation created", "invitation_id", inv.ID, "team_id", teamID)
	s.sendInvitation(ctx, inv)
	return inv, nil
}

// claimSlot points the (team, email) slot at inv and returns the slot's new version.
// The slot is free when it is absent or released, or when the invitation it points at is
// terminal or past its window. A slot whose invitation is not written yet counts as taken
// until the slot's own expiry.
func (s *invitationService) claimSlot(ctx context.Context, inv *domain.TeamInvitation) (int64, error) {
	id := slotID(inv.TeamID, inv.InvitedEmail)
	fields, err := domain.FieldsOf(domain.InvitationSlot{
		TeamID:       inv.TeamID,
		InvitedEmail: inv.InvitedEmail,
		InvitationID: inv.ID,
		ExpiresAt:    inv.ExpiresAt,
	})
	if err != nil {
		return 0, fmt.Errorf("encode invitation slot: %w", err)
	}

	doc, err := s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
		return s.store.Get(ctx, domain.CollectionInvitationSlots, id)
	})
	if errors.Is(err, domain.ErrNotFound) {
		doc, err = s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
			return s.store.Create(ctx, domain.CollectionInvitationSlots, id, fields)
		})
		if errors.Is(err, domain.ErrAlreadyExists) {
			return 0, fmt.Errorf("invitation for %s: %w", inv.InvitedEmail, domain.ErrConflict)
		}
		if err != nil {
			return 0, fmt.Errorf("claim invitation slot: %w", err)
		}
		return doc.Version, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get invitation slot: %w", err)
	}

	var slot domain.InvitationSlot
	if err := doc.Decode(&slot); err != nil {
		return 0, fmt.Errorf("decode invitation slot: %w", err)
	}
	if slot.InvitationID != "" {
		now := s.now()
		current, currentDoc, err := s.getInvitation(ctx, slot.InvitationID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if !now.After(slot.ExpiresAt) {
				return 0, fmt.Errorf("invitation for %s: %w", inv.InvitedEmail, domain.ErrConflict)
			}
		case err != nil:
			return 0, err
		case current.Status == domain.InvitationPending:
			if !current.IsExpiredAt(now) {
				return 0, fmt.Errorf("invitation for %s: %w", inv.InvitedEmail, domain.ErrConflict)
			}
			s.markExpired(ctx, currentDoc)
		}
	}

	doc, err = s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
		return s.store.UpdateIfMatch(ctx, domain.CollectionInvitationSlots, id, doc.Version, fields)
	})
	if errors.Is(err, domain.ErrPreconditionFailed) {
		return 0, fmt.Errorf("invitation for %s: %w", inv.InvitedEmail, domain.ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("claim invitation slot: %w", err)
	}
	return doc.Version, nil
}

// releaseSlot frees a slot claimed for an invitation that was never written.
func (s *invitationService) releaseSlot(ctx context.Context, inv *domain.TeamInvitation, version int64) {
	_, err := s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
		return s.store.UpdateIfMatch(ctx, domain.CollectionInvitationSlots, slotID(inv.TeamID, inv.InvitedEmail), version, domain.Fields{
			fieldInvitationID: "",
		})
	})
	if err != nil {
		s.logger.WarnContext(ctx, "invitation slot not released", "invitation_id", inv.ID, "err", err)
	}
}

// RespondToInvite records the invitee's decision. Accepting also adds the responder to the
// team roster; if only that second write fails the invitation stays aceito and the error
// wraps ErrRosterUpdateFailed.
func (s *invitationService) RespondToInvite(ctx context.Context, inviteID string, responder *domain.Identity, decision domain.InvitationStatus) (*domain.TeamInvitation, error) {
	if decision != domain.InvitationAccepted && decision != domain.InvitationDeclined {
		return nil, fmt.Errorf("%w: decision must be %s or %s", domain.ErrInvalidInput, domain.InvitationAccepted, domain.InvitationDeclined)
	}
	if responder == nil {
		return nil, domain.ErrUnauthenticated
	}
	email := NormalizeEmail(responder.Email)

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		inv, doc, err := s.getInvitation(ctx, inviteID)
		if err != nil {
			return nil, err
		}
		if email == "" || email != inv.InvitedEmail {
			return nil, fmt.Errorf("invitation %s: %w", inviteID, domain.ErrForbidden)
		}
		if err := s.checkPending(ctx, inv, doc); err != nil {
			return nil, err
		}

		now := s.now().UTC()
		updated, err := s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
			return s.store.UpdateIfMatch(ctx, domain.CollectionInvitations, inv.ID, doc.Version, domain.Fields{
				fieldStatus:           decision,
				fieldRespondedAt:      now,
				fieldRespondedBy:      responder.UserID,
				domain.FieldUpdatedAt: now,
			})
		})
		if errors.Is(err, domain.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("respond to invitation %s: %w", inviteID, err)
		}
		if err := updated.Decode(inv); err != nil {
			return nil, fmt.Errorf("decode invitation: %w", err)
		}
		s.metrics.InvitationTransition(string(decision))
		s.logger.InfoContext(ctx, "team invitation answered", "invitation_id", inv.ID, "status", decision)

		if decision == domain.InvitationAccepted {
			member := domain.TeamMember{UserID: responder.UserID, Email: email, Name: responder.Name, JoinedAt: now}
			if err := s.addMember(ctx, inv.TeamID, member); err != nil {
				s.logger.ErrorContext(ctx, "roster update failed after accept", "invitation_id", inv.ID, "team_id", inv.TeamID, "err", err)
				return inv, fmt.Errorf("%w: team %s: %w", domain.ErrRosterUpdateFailed, inv.TeamID, err)
			}
		}
		return inv, nil
	}
	return nil, fmt.Errorf("invitation %s: %w", inviteID, domain.ErrAlreadyResolved)
}

func (s *invitationService) AcceptInvite(ctx context.Context, inviteID string, responder *domain.Identity) (*domain.TeamInvitation, error) {
	return s.RespondToInvite(ctx, inviteID, responder, domain.InvitationAccepted)
}

func (s *invitationService) DeclineInvite(ctx context.Context, inviteID string, responder *domain.Identity) (*domain.TeamInvitation, error) {
	return s.RespondToInvite(ctx, inviteID, responder, domain.InvitationDeclined)
}

// CancelInvite withdraws a pendente invitation. Only the captain who sent it may cancel.
func (s *invitationService) CancelInvite(ctx context.Context, inviteID, captainID string) (*domain.TeamInvitation, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		inv, doc, err := s.getInvitation(ctx, inviteID)
		if err != nil {
			return nil, err
		}
		if inv.CaptainID != captainID {
			return nil, fmt.Errorf("invitation %s: %w", inviteID, domain.ErrForbidden)
		}
		if err := s.checkPending(ctx, inv, doc); err != nil {
			return nil, err
		}

		now := s.now().UTC()
		updated, err := s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
			return s.store.UpdateIfMatch(ctx, domain.CollectionInvitations, inv.ID, doc.Version, domain.Fields{
				fieldStatus:           domain.InvitationCancelled,
				domain.FieldUpdatedAt: now,
			})
		})
		if errors.Is(err, domain.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cancel invitation %s: %w", inviteID, err)
		}
		if err := updated.Decode(inv); err != nil {
			return nil, fmt.Errorf("decode invitation: %w", err)
		}
		s.metrics.InvitationTransition(string(domain.InvitationCancelled))
		s.logger.InfoContext(ctx, "team invitation cancelled", "invitation_id", inv.ID)
		return inv, nil
	}
	return nil, fmt.Errorf("invitation %s: %w", inviteID, domain.ErrAlreadyResolved)
}

// ListMyPendingInvites returns the pendente invitations addressed to email that are still
// inside their window, oldest first.
func (s *invitationService) ListMyPendingInvites(ctx context.Context, email string) ([]*domain.TeamInvitation, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	invites, err := s.queryInvitations(ctx, domain.Fields{
		fieldInvitedEmail: email,
		fieldStatus:       domain.InvitationPending,
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	pending := make([]*domain.TeamInvitation, 0, len(invites))
	for _, inv := range invites {
		if !inv.IsExpiredAt(now) {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}

// ListTeamInvites returns every invitation a team has sent, with overdue pendente
// invitations reported as expirado.
func (s *invitationService) ListTeamInvites(ctx context.Context, teamID, captainID string) ([]*domain.TeamInvitation, error) {
	team, _, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.CaptainID != captainID {
		return nil, fmt.Errorf("team %s: %w", teamID, domain.ErrForbidden)
	}
	invites, err := s.queryInvitations(ctx, domain.Fields{fieldTeamID: teamID})
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, inv := range invites {
		inv.Status = inv.EffectiveStatus(now)
	}
	return invites, nil
}

// checkPending rejects a resolved invitation and lazily expires an overdue one.
func (s *invitationService) checkPending(ctx context.Context, inv *domain.TeamInvitation, doc *domain.Document) error {
	if inv.Status.IsTerminal() {
		return fmt.Errorf("invitation %s is %s: %w", inv.ID, inv.Status, domain.ErrAlreadyResolved)
	}
	if inv.IsExpiredAt(s.now()) {
		s.markExpired(ctx, doc)
		return fmt.Errorf("invitation %s: %w", inv.ID, domain.ErrInviteExpired)
	}
	return nil
}

// markExpired writes expirado to an overdue pendente invitation. Losing the race to
// another writer is fine: the invitation is already terminal.
func (s *invitationService) markExpired(ctx context.Context, doc *domain.Document) {
	_, err := s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
		return s.store.UpdateIfMatch(ctx, domain.CollectionInvitations, doc.ID, doc.Version, domain.Fields{
			fieldStatus:           domain.InvitationExpired,
			domain.FieldUpdatedAt: s.now().UTC(),
		})
	})
	if err != nil {
		s.logger.DebugContext(ctx, "lazy invitation expiry not written", "invitation_id", doc.ID, "err", err)
		return
	}
	s.metrics.InvitationTransition(string(domain.InvitationExpired))
}

// addMember appends member to the team roster with update-if-match. A member already on
// the roster is left as is.
func (s *invitationService) addMember(ctx context.Context, teamID string, member domain.TeamMember) error {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		team, doc, err := s.getTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team.HasMember(member.UserID, member.Email) {
			return nil
		}
		members := append(team.Members, member)
		_, err = s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
			return s.store.UpdateIfMatch(ctx, domain.CollectionTeams, teamID, doc.Version, domain.Fields{
				fieldMembers:         members,
				domain.FieldUpdatedAt: member.JoinedAt,
			})
		})
		if errors.Is(err, domain.ErrPreconditionFailed) {
			continue
		}
		return err
	}
	return domain.ErrPreconditionFailed
}

func (s *invitationService) sendInvitation(ctx context.Context, inv *domain.TeamInvitation) {
	if s.emails == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	err := s.emails.SendTeamInvitation(nctx, &domain.TeamInvitationEmailData{
		Email:         inv.InvitedEmail,
		TeamName:      inv.TeamName,
		InvitationID:  inv.ID,
		ExpiresInDays: int(s.ttl / (24 * time.Hour)),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "team invitation email not sent", "invitation_id", inv.ID, "err", err)
	}
}

func (s *invitationService) getTeam(ctx context.Context, teamID string) (*domain.Team, *domain.Document, error) {
	doc, err := s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
		return s.store.Get(ctx, domain.CollectionTeams, teamID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get team %s: %w", teamID, err)
	}
	team := &domain.Team{}
	if err := doc.Decode(team); err != nil {
		return nil, nil, fmt.Errorf("decode team %s: %w", teamID, err)
	}
	if team.ID == "" {
		team.ID = doc.ID
	}
	return team, doc, nil
}

func (s *invitationService) getInvitation(ctx context.Context, inviteID string) (*domain.TeamInvitation, *domain.Document, error) {
	if strings.TrimSpace(inviteID) == "" {
		return nil, nil, fmt.Errorf("invitation: %w", domain.ErrNotFound)
	}
	doc, err := s.withTimeout(ctx, func(ctx context.Context) (*domain.Document, error) {
		return s.store.Get(ctx, domain.CollectionInvitations, inviteID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get invitation %s: %w", inviteID, err)
	}
	inv := &domain.TeamInvitation{}
	if err := doc.Decode(inv); err != nil {
		return nil, nil, fmt.Errorf("decode invitation %s: %w", inviteID, err)
	}
	return inv, doc, nil
}

func (s *invitationService) queryInvitations(ctx context.Context, filter domain.Fields) ([]*domain.TeamInvitation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	docs, err := s.store.Query(ctx, domain.CollectionInvitations, filter)
	if err != nil {
		return nil, fmt.Errorf("query invitations: %w", err)
	}
	invites := make([]*domain.TeamInvitation, 0, len(docs))
	for _, doc := range docs {
		inv := &domain.TeamInvitation{}
		if err := doc.Decode(inv); err != nil {
			return nil, fmt.Errorf("decode invitation %s: %w", doc.ID, err)
		}
		invites = append(invites, inv)
	}
	return invites, nil
}

func (s *invitationService) withTimeout(ctx context.Context, fn func(ctx context.Context) (*domain.Document, error)) (*domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}
