package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

// SignatureService binds signatures to cases. A case holds at most one valid
// signature; binding a new one invalidates the previous one in the same
// transaction as the status change.
type SignatureService struct {
	store   ports.Store
	machine *CaseMachine
	metrics ports.LifecycleMetrics
	now     func() time.Time
}

func NewSignatureService(store ports.Store, machine *CaseMachine, metrics ports.LifecycleMetrics) *SignatureService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SignatureService{
		store:   store,
		machine: machine,
		metrics: metrics,
		now:     utcNow,
	}
}

func (s *SignatureService) Bind(ctx context.Context, actor domain.Actor, req ports.BindRequest) (*ports.BindResult, error) {
	if err := domain.ValidateSignatureImage(req.Data); err != nil {
		return nil, err
	}
	signerID := strings.TrimSpace(req.SignerID)
	if signerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "bind signature", fmt.Errorf("signer id is required"))
	}
	source := req.Metadata.Source
	if source == "" {
		source = domain.SourceAgentApplied
		if actor.Role == domain.RoleClient {
			source = domain.SourceClientPortal
		}
	}
	if source == domain.SourceAgentApplied {
		if err := requireStaff(actor, "apply signature"); err != nil {
			return nil, err
		}
	}

	event := domain.EventSignatureBound
	if req.Complete {
		event = domain.EventCaseCompleted
	}

	var sig *domain.Signature
	updated, err := s.machine.Run(ctx, s.store, Step{
		CaseID: req.CaseID,
		Event:  event,
		Actor:  actor,
		Note:   string(source),
		Effect: func(ctx context.Context, tx ports.Store, c *domain.Case, _ domain.CaseStatus) error {
			now := s.now()
			if _, err := tx.Signatures().InvalidateValid(ctx, c.ID, now); err != nil {
				return fmt.Errorf("invalidate signature: %w", err)
			}
			metadata := req.Metadata
			metadata.Source = source
			sig = &domain.Signature{
				ID:       uuid.NewString(),
				CaseID:   c.ID,
				Data:     append([]byte(nil), req.Data...),
				SignerID: signerID,
				SignedAt: now,
				IsValid:  true,
				Metadata: metadata,
			}
			if err := tx.Signatures().Create(ctx, sig); err != nil {
				return fmt.Errorf("insert signature: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSignatureBound(source)
	if req.Complete {
		// The worker listens for signature.bound regardless of which
		// transition carried the signature.
		s.machine.Publish(ctx, ports.LifecycleEvent{
			Type:       domain.CaseEventSignatureBound,
			CaseID:     updated.ID,
			ToStatus:   updated.Status,
			OccurredAt: sig.SignedAt,
		})
	}
	return &ports.BindResult{Signature: sig, Status: updated.Status}, nil
}

func (s *SignatureService) GetAuthoritative(ctx context.Context, caseID string) (*domain.Signature, error) {
	if _, err := s.store.Cases().GetByID(ctx, caseID); err != nil {
		return nil, err
	}
	return s.store.Signatures().GetValid(ctx, caseID)
}

func (s *SignatureService) History(ctx context.Context, caseID string) ([]domain.Signature, error) {
	if _, err := s.store.Cases().GetByID(ctx, caseID); err != nil {
		return nil, err
	}
	sigs, err := s.store.Signatures().ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	return sigs, nil
}
