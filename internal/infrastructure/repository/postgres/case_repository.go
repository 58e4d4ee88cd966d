package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

const caseColumns = `id, case_number, client_id, agent_id, status, version, insurance_company, policy_number,
	policy_type, termination_date, reason_for_termination, secure_token, token_expires_at, reminded_at,
	completed_at, created_at, updated_at`

type CaseRepository struct {
	q querier
}

func (r *CaseRepository) Create(ctx context.Context, c *domain.Case) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO cases (`+caseColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		c.ID, c.CaseNumber, c.ClientID, c.AgentID, string(c.Status), c.Version, c.InsuranceCompany, c.PolicyNumber,
		c.PolicyType, c.TerminationDate, c.ReasonForTermination, c.SecureToken, c.TokenExpiresAt, c.RemindedAt,
		c.CompletedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert case", err)
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (r *CaseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	return r.get(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
}

// GetByIDForUpdate locks the row until the surrounding transaction ends.
func (r *CaseRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Case, error) {
	return r.get(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1 FOR UPDATE`, id)
}

func (r *CaseRepository) get(ctx context.Context, query, id string) (*domain.Case, error) {
	c, err := scanCase(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCaseNotFound, "get case", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get case: %w", err)
	}
	return &c, nil
}

// UpdateStatus writes the new status only if the row still holds the
// expected status and version.
func (r *CaseRepository) UpdateStatus(ctx context.Context, u domain.StatusUpdate) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE cases
SET status = $4, version = version + 1, completed_at = $5, updated_at = $6
WHERE id = $1 AND status = $2 AND version = $3
`, u.CaseID, string(u.From), u.ExpectedVersion, string(u.To), u.CompletedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update case status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update case status rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = r.q.QueryRowContext(ctx, `SELECT status FROM cases WHERE id = $1`, u.CaseID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrCaseNotFound, "update case status", fmt.Errorf("id=%s", u.CaseID))
	}
	if err != nil {
		return fmt.Errorf("reload case status: %w", err)
	}
	return domain.WrapError(domain.ErrConflict, "update case status",
		fmt.Errorf("case %s is %s, expected %s@v%d", u.CaseID, current, u.From, u.ExpectedVersion))
}

func (r *CaseRepository) SetToken(ctx context.Context, id string, token *string, expiresAt *time.Time) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE cases SET secure_token = $2, token_expires_at = $3 WHERE id = $1
`, id, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set case token: %w", err)
	}
	return requireAffected(res, domain.ErrCaseNotFound, "set case token", id)
}

func (r *CaseRepository) MarkReminded(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE cases SET reminded_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark case reminded: %w", err)
	}
	return requireAffected(res, domain.ErrCaseNotFound, "mark case reminded", id)
}

func (r *CaseRepository) ListAwaitingReminder(ctx context.Context, lastContactBefore time.Time, limit int) ([]domain.Case, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+caseColumns+`
FROM cases
WHERE status = $1 AND COALESCE(reminded_at, updated_at) < $2
ORDER BY COALESCE(reminded_at, updated_at) ASC
LIMIT $3
`, string(domain.StatusEmailSent), lastContactBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list cases awaiting reminder: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return out, nil
}

func scanCase(row scanner) (domain.Case, error) {
	var (
		c      domain.Case
		status string
	)
	err := row.Scan(
		&c.ID, &c.CaseNumber, &c.ClientID, &c.AgentID, &status, &c.Version, &c.InsuranceCompany, &c.PolicyNumber,
		&c.PolicyType, &c.TerminationDate, &c.ReasonForTermination, &c.SecureToken, &c.TokenExpiresAt, &c.RemindedAt,
		&c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Case{}, err
	}
	if c.Status, err = domain.ParseCaseStatus(status); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

type ClientRepository struct {
	q querier
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	var c domain.Client
	err := r.q.QueryRowContext(ctx, `
SELECT id, full_name, email, phone, street, postal_code, city, created_at
FROM clients
WHERE id = $1
`, id).Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.Street, &c.PostalCode, &c.City, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrClientNotFound, "get client", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}
