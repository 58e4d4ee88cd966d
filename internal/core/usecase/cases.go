package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

// CaseService implements the agent-facing lifecycle operations.
type CaseService struct {
	store         ports.Store
	tokens        *TokenService
	machine       *CaseMachine
	mailer        ports.Mailer
	catalogue     *domain.Catalogue
	portalBaseURL string
	logger        *slog.Logger
	now           func() time.Time
}

func NewCaseService(
	store ports.Store,
	tokens *TokenService,
	machine *CaseMachine,
	mailer ports.Mailer,
	catalogue *domain.Catalogue,
	portalBaseURL string,
	logger *slog.Logger,
) *CaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseService{
		store:         store,
		tokens:        tokens,
		machine:       machine,
		mailer:        mailer,
		catalogue:     catalogue,
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
		logger:        logger,
		now:           utcNow,
	}
}

func (s *CaseService) Create(ctx context.Context, actor domain.Actor, req ports.CreateCaseRequest) (*domain.Case, error) {
	if err := requireStaff(actor, "create cases"); err != nil {
		return nil, err
	}
	clientID := strings.TrimSpace(req.ClientID)
	policy := req.Policy.Normalize()
	switch {
	case clientID == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "create case", fmt.Errorf("client_id is required"))
	case policy.InsuranceCompany == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "create case", fmt.Errorf("insurance_company is required"))
	case policy.PolicyNumber == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "create case", fmt.Errorf("policy_number is required"))
	}

	now := s.now()
	c := &domain.Case{
		ID:                   uuid.NewString(),
		CaseNumber:           domain.NewCaseNumber(now),
		ClientID:             clientID,
		AgentID:              actor.ID,
		Status:               domain.StatusDraft,
		InsuranceCompany:     policy.InsuranceCompany,
		PolicyNumber:         policy.PolicyNumber,
		PolicyType:           policy.PolicyType,
		TerminationDate:      policy.TerminationDate,
		ReasonForTermination: policy.ReasonForTermination,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		if _, err := tx.Clients().GetByID(ctx, clientID); err != nil {
			return err
		}
		if err := tx.Cases().Create(ctx, c); err != nil {
			return fmt.Errorf("insert case: %w", err)
		}
		return tx.Events().Append(ctx, &domain.CaseEvent{
			ID:        uuid.NewString(),
			CaseID:    c.ID,
			Type:      domain.CaseEventCreated,
			ToStatus:  domain.StatusDraft,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("case_created", "case_id", c.ID, "case_number", c.CaseNumber, "agent_id", actor.ID)
	return c, nil
}

func (s *CaseService) Details(ctx context.Context, caseID string) (*ports.CaseDetails, error) {
	c, err := s.store.Cases().GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	details := &ports.CaseDetails{Case: c, NextEvents: domain.AllowedEvents(c.Status)}

	client, err := s.store.Clients().GetByID(ctx, c.ClientID)
	switch {
	case err == nil:
		details.Client = client
	case !domain.IsKind(err, domain.ErrNotFound):
		return nil, err
	}

	docs, err := s.store.Documents().ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	details.Documents = s.catalogue.MarkSuperseded(docs)
	details.Completeness = s.catalogue.Evaluate(docs)

	sig, err := s.store.Signatures().GetValid(ctx, caseID)
	switch {
	case err == nil:
		details.Signature = sig
	case !domain.IsKind(err, domain.ErrNoSignatureOnFile):
		return nil, err
	}

	if details.Generated, err = s.store.Generated().ListByCase(ctx, caseID); err != nil {
		return nil, fmt.Errorf("list generated documents: %w", err)
	}
	if details.Events, err = s.store.Events().ListByCase(ctx, caseID); err != nil {
		return nil, fmt.Errorf("list case events: %w", err)
	}
	return details, nil
}

// SendInvitation issues (or reuses) the portal token, mails the link and moves
// a draft case to email_sent. Re-sending on an email_sent case keeps the status.
func (s *CaseService) SendInvitation(ctx context.Context, actor domain.Actor, caseID string) (*ports.InvitationResult, error) {
	if err := requireStaff(actor, "send invitations"); err != nil {
		return nil, err
	}
	c, err := s.store.Cases().GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.StatusDraft && c.Status != domain.StatusEmailSent {
		if _, err := domain.NextStatus(domain.EventInvitationSent, c.Status); err != nil {
			return nil, err
		}
	}

	token, inv, err := s.prepareInvitation(ctx, actor, c)
	if err != nil {
		return nil, err
	}
	messageID, err := s.mailer.SendInvitation(ctx, inv)
	if err != nil {
		return nil, upstreamError("send invitation", err)
	}

	status := c.Status
	if c.Status == domain.StatusDraft {
		updated, err := s.machine.Run(ctx, s.store, Step{
			CaseID: caseID,
			Event:  domain.EventInvitationSent,
			Actor:  actor,
			Note:   messageID,
			Guard: func(ctx context.Context, tx ports.Store, c *domain.Case) error {
				active, err := tx.Tokens().LatestActive(ctx, c.ID)
				if err != nil || !active.ActiveAt(s.now()) {
					return &domain.PreconditionError{
						Event:  domain.EventInvitationSent,
						Status: c.Status,
						Reason: "no active access token",
					}
				}
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
		status = updated.Status
	} else if err := s.appendEvent(ctx, caseID, domain.CaseEventInvitationResent, actor, messageID); err != nil {
		return nil, err
	}

	return &ports.InvitationResult{
		CaseID:         caseID,
		Status:         status,
		MessageID:      messageID,
		PortalURL:      inv.PortalURL,
		TokenExpiresAt: token.ExpiresAt,
	}, nil
}

// SendReminder re-mails the portal link to a client who has not finished
// intake. An expired token is replaced first.
func (s *CaseService) SendReminder(ctx context.Context, actor domain.Actor, caseID string) (*ports.InvitationResult, error) {
	if err := requireStaff(actor, "send reminders"); err != nil {
		return nil, err
	}
	c, err := s.store.Cases().GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.StatusEmailSent {
		if c.Status == domain.StatusCompleted {
			return nil, domain.WrapError(domain.ErrAlreadyFinalized, "send reminder", fmt.Errorf("case %s", c.ID))
		}
		return nil, domain.WrapError(domain.ErrIllegalState, "send reminder", fmt.Errorf("case is %s, reminders require %s", c.Status, domain.StatusEmailSent))
	}

	token, inv, err := s.prepareInvitation(ctx, actor, c)
	if err != nil {
		return nil, err
	}
	messageID, err := s.mailer.SendReminder(ctx, inv)
	if err != nil {
		return nil, upstreamError("send reminder", err)
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		if err := tx.Cases().MarkReminded(ctx, caseID, now); err != nil {
			return err
		}
		return tx.Events().Append(ctx, &domain.CaseEvent{
			ID:        uuid.NewString(),
			CaseID:    caseID,
			Type:      domain.CaseEventReminderSent,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Note:      messageID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return &ports.InvitationResult{
		CaseID:         caseID,
		Status:         c.Status,
		MessageID:      messageID,
		PortalURL:      inv.PortalURL,
		TokenExpiresAt: token.ExpiresAt,
	}, nil
}

func (s *CaseService) prepareInvitation(ctx context.Context, actor domain.Actor, c *domain.Case) (*domain.AccessToken, ports.Invitation, error) {
	client, err := s.store.Clients().GetByID(ctx, c.ClientID)
	if err != nil {
		return nil, ports.Invitation{}, err
	}
	if strings.TrimSpace(client.Email) == "" {
		return nil, ports.Invitation{}, domain.WrapError(domain.ErrInvalidInput, "send invitation", fmt.Errorf("client %s has no email address", client.ID))
	}
	token, err := s.tokens.Issue(ctx, actor, c.ID)
	if err != nil {
		return nil, ports.Invitation{}, err
	}
	return token, ports.Invitation{
		CaseID:         c.ID,
		CaseNumber:     c.CaseNumber,
		ClientName:     client.FullName,
		ClientEmail:    client.Email,
		PortalURL:      s.portalBaseURL + "/" + token.Value,
		TokenExpiresAt: token.ExpiresAt,
	}, nil
}

// Cancel moves a non-terminal case to cancelled and revokes its token in the
// same transaction.
func (s *CaseService) Cancel(ctx context.Context, actor domain.Actor, caseID, reason string) (*domain.Case, error) {
	if actor.Role != domain.RoleAgent && actor.Role != domain.RoleAdmin {
		return nil, domain.WrapError(domain.ErrForbidden, "cancel case", fmt.Errorf("role %q may not cancel cases", actor.Role))
	}
	return s.machine.Run(ctx, s.store, Step{
		CaseID: caseID,
		Event:  domain.EventCancelled,
		Actor:  actor,
		Note:   strings.TrimSpace(reason),
		Effect: func(ctx context.Context, tx ports.Store, c *domain.Case, _ domain.CaseStatus) error {
			return s.tokens.revokeTx(ctx, tx, actor, c.ID)
		},
	})
}

// Complete releases a signed case.
func (s *CaseService) Complete(ctx context.Context, actor domain.Actor, caseID string) (*domain.Case, error) {
	if err := requireStaff(actor, "complete cases"); err != nil {
		return nil, err
	}
	return s.machine.Run(ctx, s.store, Step{
		CaseID: caseID,
		Event:  domain.EventCaseCompleted,
		Actor:  actor,
		Guard: func(ctx context.Context, tx ports.Store, c *domain.Case) error {
			if _, err := tx.Signatures().GetValid(ctx, c.ID); err != nil {
				if domain.IsKind(err, domain.ErrNoSignatureOnFile) {
					return &domain.PreconditionError{
						Event:  domain.EventCaseCompleted,
						Status: c.Status,
						Reason: "no signature on file",
					}
				}
				return err
			}
			return nil
		},
	})
}

// OverrideStatus is the administrative escape hatch around the transition
// table. It still goes through the CAS and the audit trail.
func (s *CaseService) OverrideStatus(ctx context.Context, actor domain.Actor, caseID string, status domain.CaseStatus, reason string) (*domain.Case, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.WrapError(domain.ErrForbidden, "override status", fmt.Errorf("role %q may not override status", actor.Role))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "override status", fmt.Errorf("reason is required"))
	}
	target, err := domain.ParseCaseStatus(string(status))
	if err != nil {
		return nil, err
	}
	updated, err := s.machine.Run(ctx, s.store, Step{
		CaseID: caseID,
		Event:  domain.EventStatusOverride,
		Target: target,
		Actor:  actor,
		Note:   reason,
		Effect: func(ctx context.Context, tx ports.Store, c *domain.Case, to domain.CaseStatus) error {
			if to == domain.StatusCancelled {
				return s.tokens.revokeTx(ctx, tx, actor, c.ID)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.logger.Warn("case_status_overridden", "case_id", caseID, "to", string(target), "actor_id", actor.ID, "reason", reason)
	return updated, nil
}

func (s *CaseService) RevokeToken(ctx context.Context, actor domain.Actor, caseID string) error {
	if err := requireStaff(actor, "revoke tokens"); err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, actor, caseID)
}

func (s *CaseService) Events(ctx context.Context, caseID string) ([]domain.CaseEvent, error) {
	if _, err := s.store.Cases().GetByID(ctx, caseID); err != nil {
		return nil, err
	}
	events, err := s.store.Events().ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case events: %w", err)
	}
	return events, nil
}

func (s *CaseService) appendEvent(ctx context.Context, caseID string, eventType domain.CaseEventType, actor domain.Actor, note string) error {
	if err := s.store.Events().Append(ctx, &domain.CaseEvent{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		Type:      eventType,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Note:      note,
		CreatedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("append case event: %w", err)
	}
	return nil
}
