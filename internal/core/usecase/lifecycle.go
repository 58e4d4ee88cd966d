package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

// Step describes one state machine transition. Guard runs before any write;
// Effect runs inside the same transaction right before the status CAS, so
// both commit or roll back together.
type Step struct {
	CaseID string
	Event  domain.Event
	// Target is only read for EventStatusOverride.
	Target domain.CaseStatus
	Actor  domain.Actor
	Note   string
	Guard  func(ctx context.Context, tx ports.Store, c *domain.Case) error
	Effect func(ctx context.Context, tx ports.Store, c *domain.Case, to domain.CaseStatus) error
}

// CaseMachine executes transitions as an optimistic read-modify-write of the
// case row. It never retries a lost race.
type CaseMachine struct {
	publisher ports.EventPublisher
	metrics   ports.LifecycleMetrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewCaseMachine(publisher ports.EventPublisher, metrics ports.LifecycleMetrics, logger *slog.Logger) *CaseMachine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseMachine{
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       utcNow,
	}
}

// Run executes the step in its own transaction and publishes the resulting
// lifecycle event after commit.
func (m *CaseMachine) Run(ctx context.Context, store ports.Store, step Step) (*domain.Case, error) {
	var (
		updated *domain.Case
		from    domain.CaseStatus
	)
	err := store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		c, prev, err := m.advance(ctx, tx, step)
		if err != nil {
			return err
		}
		updated, from = c, prev
		return nil
	})
	if err != nil {
		m.metrics.RecordTransitionRejected(step.Event, rejectionReason(err))
		return nil, err
	}

	m.metrics.RecordTransition(step.Event, from, updated.Status)
	m.logger.Info("case_transition",
		"case_id", updated.ID,
		"event", string(step.Event),
		"from", string(from),
		"to", string(updated.Status),
		"actor_id", step.Actor.ID,
		"actor_role", string(step.Actor.Role),
	)
	m.Publish(ctx, ports.LifecycleEvent{
		Type:       eventTypeFor(step.Event),
		CaseID:     updated.ID,
		FromStatus: from,
		ToStatus:   updated.Status,
		OccurredAt: updated.UpdatedAt,
	})
	return updated, nil
}

func (m *CaseMachine) advance(ctx context.Context, tx ports.Store, step Step) (*domain.Case, domain.CaseStatus, error) {
	c, err := tx.Cases().GetByID(ctx, step.CaseID)
	if err != nil {
		return nil, "", err
	}

	to, err := m.resolve(step, c)
	if err != nil {
		return nil, "", err
	}
	if step.Guard != nil {
		if err := step.Guard(ctx, tx, c); err != nil {
			return nil, "", err
		}
	}
	if step.Effect != nil {
		if err := step.Effect(ctx, tx, c, to); err != nil {
			return nil, "", err
		}
	}

	now := m.now()
	from := c.Status
	update := domain.StatusUpdate{
		CaseID:          c.ID,
		From:            from,
		ExpectedVersion: c.Version,
		To:              to,
		CompletedAt:     domain.CompletionFor(c.CompletedAt, to, now),
		UpdatedAt:       now,
	}
	if err := tx.Cases().UpdateStatus(ctx, update); err != nil {
		return nil, "", err
	}

	if err := tx.Events().Append(ctx, &domain.CaseEvent{
		ID:         uuid.NewString(),
		CaseID:     c.ID,
		Type:       eventTypeFor(step.Event),
		FromStatus: from,
		ToStatus:   to,
		ActorID:    step.Actor.ID,
		ActorRole:  step.Actor.Role,
		Note:       step.Note,
		CreatedAt:  now,
	}); err != nil {
		return nil, "", fmt.Errorf("append case event: %w", err)
	}

	out := *c
	out.Status = to
	out.Version = c.Version + 1
	out.CompletedAt = update.CompletedAt
	out.UpdatedAt = now
	return &out, from, nil
}

func (m *CaseMachine) resolve(step Step, c *domain.Case) (domain.CaseStatus, error) {
	if step.Event != domain.EventStatusOverride {
		return domain.NextStatus(step.Event, c.Status)
	}
	if step.Target == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "override status", fmt.Errorf("target status is required"))
	}
	if step.Target == c.Status {
		return "", domain.WrapError(domain.ErrInvalidInput, "override status", fmt.Errorf("case is already %s", c.Status))
	}
	return step.Target, nil
}

// Publish hands a committed event to the publisher. Delivery is best effort:
// the state change is already durable, so failures are logged and counted.
func (m *CaseMachine) Publish(ctx context.Context, event ports.LifecycleEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.metrics.RecordPublishFailure(event.Type)
		m.logger.Warn("lifecycle_event_publish_failed",
			"case_id", event.CaseID,
			"type", string(event.Type),
			"error", err,
		)
	}
}

func eventTypeFor(event domain.Event) domain.CaseEventType {
	switch event {
	case domain.EventInvitationSent:
		return domain.CaseEventInvitationSent
	case domain.EventIntakeFinalized:
		return domain.CaseEventIntakeFinalized
	case domain.EventSignatureBound:
		return domain.CaseEventSignatureBound
	case domain.EventCaseCompleted:
		return domain.CaseEventCaseCompleted
	case domain.EventCancelled:
		return domain.CaseEventCancelled
	default:
		return domain.CaseEventStatusOverride
	}
}

func rejectionReason(err error) string {
	if _, ok := domain.AsPrecondition(err); ok {
		return "precondition"
	}
	switch {
	case domain.IsKind(err, domain.ErrConflict):
		return "conflict"
	case domain.IsKind(err, domain.ErrAlreadyFinalized):
		return "already_finalized"
	case domain.IsKind(err, domain.ErrIllegalState):
		return "illegal_state"
	case domain.IsKind(err, domain.ErrNotFound):
		return "not_found"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
