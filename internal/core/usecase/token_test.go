package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

func TestTokenIssueIsIdempotentWhileActive(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)
	ctx := context.Background()

	first, err := h.tokens.Issue(ctx, agent, c.ID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if len(first.Value) < 43 || strings.ContainsAny(first.Value, "+/=") {
		t.Fatalf("expected unpadded base64url token of 32 bytes, got %q", first.Value)
	}
	if !first.ExpiresAt.Equal(h.clock.Now().Add(48 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", first.ExpiresAt)
	}

	h.clock.Advance(time.Hour)
	second, err := h.tokens.Issue(ctx, agent, c.ID)
	if err != nil {
		t.Fatalf("second Issue() error = %v", err)
	}
	if second.Value != first.Value {
		t.Fatalf("expected the active token to be reused")
	}

	stored, err := h.store.Cases().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.SecureToken == nil || *stored.SecureToken != first.Value {
		t.Fatalf("expected case projection to carry the token")
	}
	if !stored.UpdatedAt.Equal(c.UpdatedAt) {
		t.Fatalf("token issuance must not touch updated_at")
	}
}

func TestTokenIssueConcurrentCallsAgree(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)

	const callers = 8
	values := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := h.tokens.Issue(context.Background(), agent, c.ID)
			if err != nil {
				t.Errorf("Issue() error = %v", err)
				return
			}
			values[i] = token.Value
		}()
	}
	wg.Wait()
	for _, v := range values[1:] {
		if v != values[0] {
			t.Fatalf("concurrent issues returned different tokens")
		}
	}
}

func TestTokenReissuedAfterExpiry(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)
	ctx := context.Background()

	first, err := h.tokens.Issue(ctx, agent, c.ID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	h.clock.Advance(49 * time.Hour)

	v, err := h.tokens.Validate(ctx, first.Value)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !v.Expired || v.CaseID != c.ID {
		t.Fatalf("expected expired validation for case, got %+v", v)
	}
	if _, err := h.tokens.Authorize(ctx, first.Value); !domain.IsKind(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	second, err := h.tokens.Issue(ctx, agent, c.ID)
	if err != nil {
		t.Fatalf("Issue() after expiry error = %v", err)
	}
	if second.Value == first.Value {
		t.Fatalf("expected a fresh token after expiry")
	}
}

func TestTokenValidateUnknownAndRevoked(t *testing.T) {
	h := newHarness(t)
	c := h.createCase(t)
	ctx := context.Background()

	if _, err := h.tokens.Validate(ctx, "no-such-token"); !domain.IsKind(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	token, err := h.tokens.Issue(ctx, agent, c.ID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if err := h.tokens.Revoke(ctx, agent, c.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := h.tokens.Validate(ctx, token.Value); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected revoked token to be not found, got %v", err)
	}
	stored, _ := h.store.Cases().GetByID(ctx, c.ID)
	if stored.SecureToken != nil || stored.TokenExpiresAt != nil {
		t.Fatalf("expected case projection to be cleared")
	}
}

func TestTokenIssueRejectsFinishedCases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cancelled := h.createCase(t)
	if _, err := h.cases.Cancel(ctx, agent, cancelled.ID, "client withdrew"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	_, err := h.tokens.Issue(ctx, agent, cancelled.ID)
	if !domain.IsKind(err, domain.ErrIllegalState) || domain.IsKind(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected plain illegal state for cancelled case, got %v", err)
	}

	if _, err := h.tokens.Issue(ctx, agent, "missing"); !domain.IsKind(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}
