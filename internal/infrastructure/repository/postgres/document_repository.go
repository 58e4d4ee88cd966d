package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

const documentColumns = `id, case_id, document_type, filename, content_type, size_bytes, storage_ref, status,
	uploaded_by, uploaded_at, reviewed_by, review_note, reviewed_at`

type DocumentRepository struct {
	q querier
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO case_documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		doc.ID, doc.CaseID, string(doc.DocumentType), doc.Filename, doc.ContentType, doc.SizeBytes, doc.StorageRef,
		string(doc.Status), doc.UploadedBy, doc.UploadedAt, doc.ReviewedBy, doc.ReviewNote, doc.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := scanDocument(r.q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM case_documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Document, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM case_documents
WHERE case_id = $1
ORDER BY uploaded_at ASC, id ASC
`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) UpdateReview(ctx context.Context, id string, status domain.DocumentStatus, reviewer, note string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE case_documents
SET status = $2, reviewed_by = $3, review_note = $4, reviewed_at = $5
WHERE id = $1
`, id, string(status), reviewer, note, at)
	if err != nil {
		return fmt.Errorf("review document: %w", err)
	}
	return requireAffected(res, domain.ErrDocumentNotFound, "review document", id)
}

func scanDocument(row scanner) (domain.Document, error) {
	var (
		doc     domain.Document
		docType string
		status  string
	)
	err := row.Scan(
		&doc.ID, &doc.CaseID, &docType, &doc.Filename, &doc.ContentType, &doc.SizeBytes, &doc.StorageRef, &status,
		&doc.UploadedBy, &doc.UploadedAt, &doc.ReviewedBy, &doc.ReviewNote, &doc.ReviewedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.DocumentType = domain.DocumentType(docType)
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}
