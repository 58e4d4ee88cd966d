package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

const (
	DefaultTokenTTL = 7 * 24 * time.Hour
	tokenBytes      = 32
)

// TokenService issues and checks the opaque portal tokens. Issuance is an
// append-only log; the current token is the newest non-revoked entry that
// has not expired.
type TokenService struct {
	store    ports.Store
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

func NewTokenService(store ports.Store, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		store:    store,
		ttl:      ttl,
		now:      utcNow,
		generate: randomToken,
	}
}

// Issue returns the case's live token, minting a new one only when none is
// active. The case row is locked for the duration of the check.
func (s *TokenService) Issue(ctx context.Context, actor domain.Actor, caseID string) (*domain.AccessToken, error) {
	var token *domain.AccessToken
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		issued, err := s.issueTx(ctx, tx, actor, caseID)
		token = issued
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (s *TokenService) issueTx(ctx context.Context, tx ports.Store, actor domain.Actor, caseID string) (*domain.AccessToken, error) {
	c, err := tx.Cases().GetByIDForUpdate(ctx, caseID)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case domain.StatusCompleted:
		return nil, domain.WrapError(domain.ErrAlreadyFinalized, "issue token", fmt.Errorf("case %s", c.ID))
	case domain.StatusCancelled:
		return nil, domain.WrapError(domain.ErrIllegalState, "issue token", fmt.Errorf("case %s is cancelled", c.ID))
	}

	now := s.now()
	current, err := tx.Tokens().LatestActive(ctx, caseID)
	switch {
	case err == nil && !current.ExpiredAt(now):
		return current, nil
	case err != nil && !domain.IsKind(err, domain.ErrNotFound):
		return nil, fmt.Errorf("load active token: %w", err)
	}

	value, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := &domain.AccessToken{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := tx.Tokens().Insert(ctx, token); err != nil {
		return nil, fmt.Errorf("insert token: %w", err)
	}
	if err := tx.Cases().SetToken(ctx, caseID, &token.Value, &token.ExpiresAt); err != nil {
		return nil, fmt.Errorf("project token on case: %w", err)
	}
	if err := tx.Events().Append(ctx, &domain.CaseEvent{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		Type:      domain.CaseEventTokenIssued,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Note:      "expires " + token.ExpiresAt.Format(time.RFC3339),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("append case event: %w", err)
	}
	return token, nil
}

// Validate is a pure read. An expired token is reported with Expired=true,
// an unknown or revoked one as ErrTokenNotFound.
func (s *TokenService) Validate(ctx context.Context, value string) (domain.TokenValidation, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.TokenValidation{}, domain.WrapError(domain.ErrTokenNotFound, "validate token", fmt.Errorf("token is empty"))
	}
	token, err := s.store.Tokens().FindByValue(ctx, value)
	if err != nil {
		return domain.TokenValidation{}, err
	}
	if token.RevokedAt != nil {
		return domain.TokenValidation{}, domain.WrapError(domain.ErrTokenNotFound, "validate token", fmt.Errorf("token revoked"))
	}
	return domain.TokenValidation{
		CaseID:    token.CaseID,
		ExpiresAt: token.ExpiresAt,
		Expired:   token.ExpiredAt(s.now()),
	}, nil
}

// Authorize resolves a token to its case id, failing with ErrTokenExpired
// once the validity window is over.
func (s *TokenService) Authorize(ctx context.Context, value string) (string, error) {
	v, err := s.Validate(ctx, value)
	if err != nil {
		return "", err
	}
	if v.Expired {
		return "", domain.WrapError(domain.ErrTokenExpired, "authorize token", fmt.Errorf("expired at %s", v.ExpiresAt.Format(time.RFC3339)))
	}
	return v.CaseID, nil
}

// Revoke invalidates the case's current token without issuing a new one.
func (s *TokenService) Revoke(ctx context.Context, actor domain.Actor, caseID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		if _, err := tx.Cases().GetByIDForUpdate(ctx, caseID); err != nil {
			return err
		}
		return s.revokeTx(ctx, tx, actor, caseID)
	})
}

func (s *TokenService) revokeTx(ctx context.Context, tx ports.Store, actor domain.Actor, caseID string) error {
	now := s.now()
	revoked, err := tx.Tokens().RevokeActive(ctx, caseID, now)
	if err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	if err := tx.Cases().SetToken(ctx, caseID, nil, nil); err != nil {
		return fmt.Errorf("clear case token: %w", err)
	}
	if revoked == 0 {
		return nil
	}
	if err := tx.Events().Append(ctx, &domain.CaseEvent{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		Type:      domain.CaseEventTokenRevoked,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("append case event: %w", err)
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
