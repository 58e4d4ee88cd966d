package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

func TestCreateCaseValidatesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  ports.CreateCaseRequest
		kind error
	}{
		{name: "missing client", req: ports.CreateCaseRequest{Policy: domain.PolicyFields{InsuranceCompany: "A", PolicyNumber: "1"}}, kind: domain.ErrInvalidInput},
		{name: "missing insurer", req: ports.CreateCaseRequest{ClientID: "client-1", Policy: domain.PolicyFields{PolicyNumber: "1"}}, kind: domain.ErrInvalidInput},
		{name: "missing policy", req: ports.CreateCaseRequest{ClientID: "client-1", Policy: domain.PolicyFields{InsuranceCompany: "A"}}, kind: domain.ErrInvalidInput},
		{name: "unknown client", req: ports.CreateCaseRequest{ClientID: "nobody", Policy: domain.PolicyFields{InsuranceCompany: "A", PolicyNumber: "1"}}, kind: domain.ErrClientNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.cases.Create(ctx, agent, tc.req); !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}

	client := domain.Actor{ID: "client-1", Role: domain.RoleClient}
	_, err := h.cases.Create(ctx, client, ports.CreateCaseRequest{ClientID: "client-1", Policy: domain.PolicyFields{InsuranceCompany: "A", PolicyNumber: "1"}})
	if !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for client actor, got %v", err)
	}
}

func TestCreateCaseStartsInDraft(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)

	if c.Status != domain.StatusDraft || c.CompletedAt != nil {
		t.Fatalf("unexpected new case %+v", c)
	}
	if !strings.HasPrefix(c.CaseNumber, "TC-") {
		t.Fatalf("unexpected case number %q", c.CaseNumber)
	}
	events, err := h.cases.Events(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.CaseEventCreated {
		t.Fatalf("expected a single created event, got %+v", events)
	}
}

func TestSendInvitationMovesDraftToEmailSent(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)
	ctx := context.Background()

	res, err := h.cases.SendInvitation(ctx, agent, c.ID)
	if err != nil {
		t.Fatalf("SendInvitation() error = %v", err)
	}
	if res.Status != domain.StatusEmailSent {
		t.Fatalf("expected email_sent, got %s", res.Status)
	}
	if !strings.HasPrefix(res.PortalURL, "https://portal.example.com/p/") {
		t.Fatalf("unexpected portal url %q", res.PortalURL)
	}
	if len(h.mailer.invitations) != 1 || h.mailer.invitations[0].ClientEmail != "juergen@example.com" {
		t.Fatalf("expected invitation to client, got %+v", h.mailer.invitations)
	}
	if got := h.publisher.types(); len(got) != 1 || got[0] != domain.CaseEventInvitationSent {
		t.Fatalf("expected invitation_sent to be published, got %v", got)
	}

	h.clock.Advance(time.Hour)
	again, err := h.cases.SendInvitation(ctx, agent, c.ID)
	if err != nil {
		t.Fatalf("resend error = %v", err)
	}
	if again.Status != domain.StatusEmailSent || again.PortalURL != res.PortalURL {
		t.Fatalf("resend should keep status and token, got %+v", again)
	}
	events, _ := h.cases.Events(ctx, c.ID)
	if last := events[len(events)-1]; last.Type != domain.CaseEventInvitationResent {
		t.Fatalf("expected invitation_resent event, got %s", last.Type)
	}
}

func TestSendInvitationMailerFailureLeavesDraft(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)
	h.mailer.err = errors.New("smtp down")

	_, err := h.cases.SendInvitation(context.Background(), agent, c.ID)
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if got := h.caseStatus(t, c.ID); got != domain.StatusDraft {
		t.Fatalf("expected case to stay draft, got %s", got)
	}
}

func TestSendInvitationRejectedAfterIntake(t *testing.T) {
	h := newHarness(t)
	c, _ := h.finalizedCase(t)

	_, err := h.cases.SendInvitation(context.Background(), agent, c.ID)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for advanced case, got %v", err)
	}
}

func TestCancelRevokesToken(t *testing.T) {
	h := newHarness(t)
	c, token := h.invitedCase(t)
	ctx := context.Background()

	cancelled, err := h.cases.Cancel(ctx, agent, c.ID, "client withdrew")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.CompletedAt != nil {
		t.Fatalf("unexpected cancelled case %+v", cancelled)
	}
	if _, err := h.portal.Enter(ctx, token); !domain.IsKind(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected revoked link to be unknown, got %v", err)
	}
	if _, err := h.cases.Cancel(ctx, agent, c.ID, "again"); !domain.IsKind(err, domain.ErrIllegalState) {
		t.Fatalf("expected illegal state on second cancel, got %v", err)
	}
}

func TestCancelRequiresStaffRole(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)

	_, err := h.cases.Cancel(context.Background(), domain.SystemActor, c.ID, "")
	if !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCompleteRequiresSignature(t *testing.T) {
	h := newHarness(t)
	c, _ := h.finalizedCase(t)
	ctx := context.Background()

	_, err := h.cases.Complete(ctx, agent, c.ID)
	pe, ok := domain.AsPrecondition(err)
	if !ok {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if pe.Reason == "" || !domain.IsKind(err, domain.ErrIllegalState) {
		t.Fatalf("unexpected precondition error %+v", pe)
	}
	if got := h.caseStatus(t, c.ID); got != domain.StatusDocumentsUploaded {
		t.Fatalf("expected status unchanged, got %s", got)
	}
}

func TestCompleteKeepsFirstCompletedAt(t *testing.T) {
	h := newHarness(t)
	c, token := h.finalizedCase(t)
	ctx := context.Background()

	signed, err := h.portal.Sign(ctx, token, ports.PortalSignRequest{Data: signaturePNG(t, 0)})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if signed.Status != domain.StatusSigned {
		t.Fatalf("expected signed, got %s", signed.Status)
	}
	signedCase, _ := h.store.Cases().GetByID(ctx, c.ID)
	if signedCase.CompletedAt == nil {
		t.Fatalf("expected completed_at on signed case")
	}

	h.clock.Advance(time.Hour)
	completed, err := h.cases.Complete(ctx, agent, c.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completed.Status != domain.StatusCompleted || !completed.CompletedAt.Equal(*signedCase.CompletedAt) {
		t.Fatalf("expected completed with original completed_at, got %+v", completed)
	}
	if _, err := h.cases.Complete(ctx, agent, c.ID); !domain.IsKind(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected already finalized, got %v", err)
	}
}

func TestOverrideStatus(t *testing.T) {
	h := newHarness(t)
	c, token := h.invitedCase(t)
	ctx := context.Background()

	if _, err := h.cases.OverrideStatus(ctx, agent, c.ID, domain.StatusDraft, "fix"); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for agent, got %v", err)
	}
	if _, err := h.cases.OverrideStatus(ctx, admin, c.ID, domain.StatusDraft, " "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected reason to be required, got %v", err)
	}
	if _, err := h.cases.OverrideStatus(ctx, admin, c.ID, "pending_documents", "noop"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected alias of current status to be rejected, got %v", err)
	}

	updated, err := h.cases.OverrideStatus(ctx, admin, c.ID, domain.StatusCancelled, "duplicate case")
	if err != nil {
		t.Fatalf("OverrideStatus() error = %v", err)
	}
	if updated.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if _, err := h.tokens.Validate(ctx, token); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected override to cancelled to revoke the token, got %v", err)
	}
	events, _ := h.cases.Events(ctx, c.ID)
	var found bool
	for _, ev := range events {
		if ev.Type == domain.CaseEventStatusOverride && ev.Note == "duplicate case" && ev.FromStatus == domain.StatusEmailSent {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected status_override event in %+v", events)
	}
}

func TestDetailsAggregatesCase(t *testing.T) {
	h := newHarness(t)
	c, _ := h.finalizedCase(t)

	details, err := h.cases.Details(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Details() error = %v", err)
	}
	if details.Client == nil || details.Client.FullName != "Jürgen Weiß" {
		t.Fatalf("expected client in details")
	}
	if !details.Completeness.Complete || len(details.Documents) != 3 {
		t.Fatalf("unexpected intake in details %+v", details.Completeness)
	}
	if details.Signature != nil {
		t.Fatalf("expected no signature yet")
	}
	want := []domain.Event{domain.EventSignatureBound, domain.EventCaseCompleted, domain.EventCancelled}
	if len(details.NextEvents) != len(want) {
		t.Fatalf("expected next events %v, got %v", want, details.NextEvents)
	}
	for i := range want {
		if details.NextEvents[i] != want[i] {
			t.Fatalf("expected next events %v, got %v", want, details.NextEvents)
		}
	}
}

func TestSendReminderReissuesExpiredToken(t *testing.T) {
	h := newHarness(t)
	c, token := h.invitedCase(t)
	ctx := context.Background()

	h.clock.Advance(72 * time.Hour)
	res, err := h.cases.SendReminder(ctx, domain.SystemActor, c.ID)
	if err != nil {
		t.Fatalf("SendReminder() error = %v", err)
	}
	if strings.HasSuffix(res.PortalURL, token) {
		t.Fatalf("expected a fresh link after expiry")
	}
	stored, _ := h.store.Cases().GetByID(ctx, c.ID)
	if stored.RemindedAt == nil || !stored.RemindedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected reminded_at to be recorded")
	}

	draft := h.createCase(t)
	if _, err := h.cases.SendReminder(ctx, agent, draft.ID); !domain.IsKind(err, domain.ErrIllegalState) {
		t.Fatalf("expected illegal state for draft case, got %v", err)
	}
}
