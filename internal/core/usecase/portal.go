package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

// PortalService serves the client side. Every call resolves the token first,
// so a wrong or expired link is reported before any other rule runs.
type PortalService struct {
	store          ports.Store
	tokens         *TokenService
	intake         *IntakeService
	binder         *SignatureService
	machine        *CaseMachine
	catalogue      *domain.Catalogue
	completeOnSign bool
}

func NewPortalService(
	store ports.Store,
	tokens *TokenService,
	intake *IntakeService,
	binder *SignatureService,
	machine *CaseMachine,
	catalogue *domain.Catalogue,
	completeOnSign bool,
) *PortalService {
	return &PortalService{
		store:          store,
		tokens:         tokens,
		intake:         intake,
		binder:         binder,
		machine:        machine,
		catalogue:      catalogue,
		completeOnSign: completeOnSign,
	}
}

func (s *PortalService) Enter(ctx context.Context, token string) (*ports.PortalSummary, error) {
	validation, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if validation.Expired {
		return nil, domain.WrapError(domain.ErrTokenExpired, "enter portal", fmt.Errorf("link expired"))
	}
	c, err := s.store.Cases().GetByID(ctx, validation.CaseID)
	if err != nil {
		return nil, err
	}
	completeness, err := s.intake.Completeness(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	summary := &ports.PortalSummary{
		CaseNumber:       c.CaseNumber,
		Status:           c.Status,
		InsuranceCompany: c.InsuranceCompany,
		PolicyNumber:     c.PolicyNumber,
		PolicyType:       c.PolicyType,
		TokenExpiresAt:   validation.ExpiresAt,
		Documents:        s.catalogue.Kinds(),
		Completeness:     completeness,
	}
	if client, err := s.store.Clients().GetByID(ctx, c.ClientID); err == nil {
		summary.ClientName = client.FullName
	} else if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.Signatures().GetValid(ctx, c.ID); err == nil {
		summary.Signed = true
	} else if !domain.IsKind(err, domain.ErrNoSignatureOnFile) {
		return nil, err
	}
	return summary, nil
}

func (s *PortalService) Upload(ctx context.Context, token string, req ports.UploadRequest) (*domain.Document, error) {
	c, actor, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.intake.Upload(ctx, actor, c.ID, req)
}

// Finalize closes intake. It fails with a PreconditionError listing the
// missing document types while required documents are absent or rejected.
func (s *PortalService) Finalize(ctx context.Context, token string) (*ports.FinalizeResult, error) {
	c, actor, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	var completeness domain.Completeness
	updated, err := s.machine.Run(ctx, s.store, Step{
		CaseID: c.ID,
		Event:  domain.EventIntakeFinalized,
		Actor:  actor,
		Guard: func(ctx context.Context, tx ports.Store, c *domain.Case) error {
			docs, err := tx.Documents().ListByCase(ctx, c.ID)
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}
			completeness = s.catalogue.Evaluate(docs)
			if !completeness.Complete {
				return &domain.PreconditionError{
					Event:   domain.EventIntakeFinalized,
					Status:  c.Status,
					Missing: completeness.Missing,
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &ports.FinalizeResult{Status: updated.Status, Completeness: completeness}, nil
}

func (s *PortalService) Sign(ctx context.Context, token string, req ports.PortalSignRequest) (*ports.BindResult, error) {
	c, actor, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.binder.Bind(ctx, actor, ports.BindRequest{
		CaseID:   c.ID,
		Data:     req.Data,
		SignerID: c.ClientID,
		Metadata: domain.SignatureMetadata{
			Source:    domain.SourceClientPortal,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
		},
		Complete: s.completeOnSign,
	})
}

func (s *PortalService) resolve(ctx context.Context, token string) (*domain.Case, domain.Actor, error) {
	caseID, err := s.tokens.Authorize(ctx, token)
	if err != nil {
		return nil, domain.Actor{}, err
	}
	c, err := s.store.Cases().GetByID(ctx, caseID)
	if err != nil {
		return nil, domain.Actor{}, err
	}
	return c, domain.Actor{ID: c.ClientID, Role: domain.RoleClient}, nil
}
