package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

type TokenRepository struct {
	q querier
}

func (r *TokenRepository) Insert(ctx context.Context, t *domain.AccessToken) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO case_tokens (id, case_id, token, issued_at, expires_at, revoked_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, t.ID, t.CaseID, t.Value, t.IssuedAt, t.ExpiresAt, t.RevokedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert token", err)
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *TokenRepository) FindByValue(ctx context.Context, value string) (*domain.AccessToken, error) {
	t, err := scanToken(r.q.QueryRowContext(ctx, `
SELECT id, case_id, token, issued_at, expires_at, revoked_at
FROM case_tokens
WHERE token = $1
`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTokenNotFound, "find token", fmt.Errorf("unknown token"))
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	return &t, nil
}

func (r *TokenRepository) LatestActive(ctx context.Context, caseID string) (*domain.AccessToken, error) {
	t, err := scanToken(r.q.QueryRowContext(ctx, `
SELECT id, case_id, token, issued_at, expires_at, revoked_at
FROM case_tokens
WHERE case_id = $1 AND revoked_at IS NULL
ORDER BY issued_at DESC
LIMIT 1
`, caseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTokenNotFound, "latest active token", fmt.Errorf("case_id=%s", caseID))
		}
		return nil, fmt.Errorf("latest active token: %w", err)
	}
	return &t, nil
}

func (r *TokenRepository) RevokeActive(ctx context.Context, caseID string, at time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
UPDATE case_tokens SET revoked_at = $2 WHERE case_id = $1 AND revoked_at IS NULL
`, caseID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke tokens rows affected: %w", err)
	}
	return n, nil
}

func scanToken(row scanner) (domain.AccessToken, error) {
	var t domain.AccessToken
	err := row.Scan(&t.ID, &t.CaseID, &t.Value, &t.IssuedAt, &t.ExpiresAt, &t.RevokedAt)
	return t, err
}
