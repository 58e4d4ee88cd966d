package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

const generatedColumns = `id, case_id, template_id, blob_ref, content_type, size_bytes, sha256, is_signed, signed_at,
	signature_id, source_document_id, created_by, created_at`

type GeneratedRepository struct {
	q querier
}

func (r *GeneratedRepository) Create(ctx context.Context, doc *domain.GeneratedDocument) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO generated_documents (`+generatedColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		doc.ID, doc.CaseID, doc.TemplateID, doc.BlobRef, doc.ContentType, doc.SizeBytes, doc.SHA256, doc.IsSigned,
		doc.SignedAt, doc.SignatureID, doc.SourceDocumentID, doc.CreatedBy, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generated document: %w", err)
	}
	return nil
}

func (r *GeneratedRepository) GetByID(ctx context.Context, id string) (*domain.GeneratedDocument, error) {
	doc, err := scanGenerated(r.q.QueryRowContext(ctx, `SELECT `+generatedColumns+` FROM generated_documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get generated document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get generated document: %w", err)
	}
	return &doc, nil
}

func (r *GeneratedRepository) ListByCase(ctx context.Context, caseID string) ([]domain.GeneratedDocument, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+generatedColumns+`
FROM generated_documents
WHERE case_id = $1
ORDER BY created_at ASC, id ASC
`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list generated documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.GeneratedDocument, 0)
	for rows.Next() {
		doc, err := scanGenerated(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generated document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generated documents: %w", err)
	}
	return out, nil
}

func scanGenerated(row scanner) (domain.GeneratedDocument, error) {
	var doc domain.GeneratedDocument
	err := row.Scan(
		&doc.ID, &doc.CaseID, &doc.TemplateID, &doc.BlobRef, &doc.ContentType, &doc.SizeBytes, &doc.SHA256, &doc.IsSigned,
		&doc.SignedAt, &doc.SignatureID, &doc.SourceDocumentID, &doc.CreatedBy, &doc.CreatedAt,
	)
	return doc, err
}

type EventRepository struct {
	q querier
}

func (r *EventRepository) Append(ctx context.Context, ev *domain.CaseEvent) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO case_events (id, case_id, type, from_status, to_status, actor_id, actor_role, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, ev.ID, ev.CaseID, string(ev.Type), string(ev.FromStatus), string(ev.ToStatus), ev.ActorID, string(ev.ActorRole), ev.Note, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append case event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListByCase(ctx context.Context, caseID string) ([]domain.CaseEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id, case_id, type, from_status, to_status, actor_id, actor_role, note, created_at
FROM case_events
WHERE case_id = $1
ORDER BY seq ASC
`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case events: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CaseEvent, 0)
	for rows.Next() {
		var (
			ev                           domain.CaseEvent
			evType, from, to, actorRole string
		)
		if err := rows.Scan(&ev.ID, &ev.CaseID, &evType, &from, &to, &ev.ActorID, &actorRole, &ev.Note, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan case event: %w", err)
		}
		ev.Type = domain.CaseEventType(evType)
		ev.FromStatus = domain.CaseStatus(from)
		ev.ToStatus = domain.CaseStatus(to)
		ev.ActorRole = domain.ActorRole(actorRole)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case events: %w", err)
	}
	return out, nil
}
