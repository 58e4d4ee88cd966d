package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

func TestCaseMachinePublishFailureDoesNotUndoTransition(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)
	h.publisher.err = errors.New("nats unavailable")

	updated, err := h.machine.Run(context.Background(), h.store, Step{
		CaseID: c.ID,
		Event:  domain.EventCancelled,
		Actor:  agent,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if updated.Status != domain.StatusCancelled || updated.Version != c.Version+1 {
		t.Fatalf("unexpected case after transition %+v", updated)
	}
	if got := h.caseStatus(t, c.ID); got != domain.StatusCancelled {
		t.Fatalf("expected durable cancel, got %s", got)
	}
}

func TestCaseMachineEffectErrorRollsBack(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)
	ctx := context.Background()

	_, err := h.machine.Run(ctx, h.store, Step{
		CaseID: c.ID,
		Event:  domain.EventCancelled,
		Actor:  agent,
		Effect: func(ctx context.Context, tx ports.Store, c *domain.Case, _ domain.CaseStatus) error {
			if _, err := tx.Tokens().RevokeActive(ctx, c.ID, h.clock.Now()); err != nil {
				return err
			}
			if err := tx.Events().Append(ctx, &domain.CaseEvent{ID: "ev-x", CaseID: c.ID, Type: domain.CaseEventTokenRevoked}); err != nil {
				return err
			}
			return errors.New("effect failed")
		},
	})
	if err == nil {
		t.Fatalf("expected effect error")
	}
	if got := h.caseStatus(t, c.ID); got != domain.StatusDraft {
		t.Fatalf("expected draft after rollback, got %s", got)
	}
	events, _ := h.store.Events().ListByCase(ctx, c.ID)
	for _, ev := range events {
		if ev.ID == "ev-x" {
			t.Fatalf("expected effect writes to be rolled back")
		}
	}
	if len(h.publisher.types()) != 0 {
		t.Fatalf("expected nothing published for a failed transition")
	}
}

func TestCaseMachineRejectsUnchangedOverride(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)

	_, err := h.machine.Run(context.Background(), h.store, Step{
		CaseID: c.ID,
		Event:  domain.EventStatusOverride,
		Target: domain.StatusDraft,
		Actor:  admin,
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
