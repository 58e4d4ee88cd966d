package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

const signatureColumns = `id, case_id, data, signer_id, signed_at, is_valid, invalidated_at, source, ip_address,
	user_agent, consent_reference`

type SignatureRepository struct {
	q querier
}

// Create relies on the partial unique index to reject a second valid
// signature for one case.
func (r *SignatureRepository) Create(ctx context.Context, sig *domain.Signature) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO case_signatures (`+signatureColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		sig.ID, sig.CaseID, sig.Data, sig.SignerID, sig.SignedAt, sig.IsValid, sig.InvalidatedAt,
		string(sig.Metadata.Source), sig.Metadata.IPAddress, sig.Metadata.UserAgent, sig.Metadata.ConsentReference,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert signature", err)
		}
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (r *SignatureRepository) GetValid(ctx context.Context, caseID string) (*domain.Signature, error) {
	sig, err := scanSignature(r.q.QueryRowContext(ctx, `
SELECT `+signatureColumns+`
FROM case_signatures
WHERE case_id = $1 AND is_valid
`, caseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNoSignatureOnFile, "get valid signature", fmt.Errorf("case_id=%s", caseID))
		}
		return nil, fmt.Errorf("get valid signature: %w", err)
	}
	return &sig, nil
}

func (r *SignatureRepository) InvalidateValid(ctx context.Context, caseID string, at time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
UPDATE case_signatures SET is_valid = FALSE, invalidated_at = $2 WHERE case_id = $1 AND is_valid
`, caseID, at)
	if err != nil {
		return 0, fmt.Errorf("invalidate signature: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate signature rows affected: %w", err)
	}
	return n, nil
}

func (r *SignatureRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Signature, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+signatureColumns+`
FROM case_signatures
WHERE case_id = $1
ORDER BY signed_at DESC
`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Signature, 0)
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}

func scanSignature(row scanner) (domain.Signature, error) {
	var (
		sig    domain.Signature
		source string
	)
	err := row.Scan(
		&sig.ID, &sig.CaseID, &sig.Data, &sig.SignerID, &sig.SignedAt, &sig.IsValid, &sig.InvalidatedAt, &source,
		&sig.Metadata.IPAddress, &sig.Metadata.UserAgent, &sig.Metadata.ConsentReference,
	)
	if err != nil {
		return domain.Signature{}, err
	}
	sig.Metadata.Source = domain.SignatureSource(source)
	return sig, nil
}
