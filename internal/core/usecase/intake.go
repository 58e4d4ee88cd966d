package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

const DefaultMaxUploadBytes int64 = 15 << 20

// IntakeService records uploaded documents and computes intake completeness
// on demand from the stored records.
type IntakeService struct {
	store          ports.Store
	storage        ports.ObjectStorage
	inspector      ports.FileInspector
	catalogue      *domain.Catalogue
	maxUploadBytes int64
	metrics        ports.LifecycleMetrics
	now            func() time.Time
}

func NewIntakeService(
	store ports.Store,
	storage ports.ObjectStorage,
	inspector ports.FileInspector,
	catalogue *domain.Catalogue,
	maxUploadBytes int64,
	metrics ports.LifecycleMetrics,
) *IntakeService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &IntakeService{
		store:          store,
		storage:        storage,
		inspector:      inspector,
		catalogue:      catalogue,
		maxUploadBytes: maxUploadBytes,
		metrics:        metrics,
		now:            utcNow,
	}
}

func (s *IntakeService) Catalogue() *domain.Catalogue {
	return s.catalogue
}

func (s *IntakeService) Upload(ctx context.Context, actor domain.Actor, caseID string, req ports.UploadRequest) (*domain.Document, error) {
	docType, err := s.catalogue.Validate(req.DocumentType)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Cases().GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := uploadAllowed(c); err != nil {
		return nil, err
	}
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file is required"))
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, s.maxUploadBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("read file: %w", err))
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file is empty"))
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file exceeds %d bytes", s.maxUploadBytes))
	}

	contentType := "application/octet-stream"
	if s.inspector != nil {
		contentType, err = s.inspector.Inspect(req.Filename, data)
		if err != nil {
			return nil, err
		}
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = string(docType) + "." + extensionFor(contentType)
	}
	docID := uuid.NewString()
	key := fmt.Sprintf("cases/%s/documents/%s_%s", caseID, docID, sanitizeFilename(filename))
	if err := s.storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, upstreamError("store document", err)
	}

	return s.record(ctx, actor, caseID, docID, docType, domain.StoredFile{
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		StorageRef:  key,
	})
}

// Record appends a document record for bytes that are already stored.
func (s *IntakeService) Record(ctx context.Context, actor domain.Actor, caseID string, docType domain.DocumentType, file domain.StoredFile) (*domain.Document, error) {
	validated, err := s.catalogue.Validate(string(docType))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(file.StorageRef) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record document", fmt.Errorf("storage reference is required"))
	}
	return s.record(ctx, actor, caseID, uuid.NewString(), validated, file)
}

func (s *IntakeService) record(ctx context.Context, actor domain.Actor, caseID, docID string, docType domain.DocumentType, file domain.StoredFile) (*domain.Document, error) {
	now := s.now()
	doc := &domain.Document{
		ID:           docID,
		CaseID:       caseID,
		DocumentType: docType,
		Filename:     file.Filename,
		ContentType:  file.ContentType,
		SizeBytes:    file.SizeBytes,
		StorageRef:   file.StorageRef,
		Status:       domain.DocumentUploaded,
		UploadedBy:   actor.ID,
		UploadedAt:   now,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		c, err := tx.Cases().GetByIDForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if err := uploadAllowed(c); err != nil {
			return err
		}
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return tx.Events().Append(ctx, &domain.CaseEvent{
			ID:        uuid.NewString(),
			CaseID:    caseID,
			Type:      domain.CaseEventDocumentUploaded,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Note:      string(docType),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUpload(docType)
	return doc, nil
}

func (s *IntakeService) Completeness(ctx context.Context, caseID string) (domain.Completeness, error) {
	if _, err := s.store.Cases().GetByID(ctx, caseID); err != nil {
		return domain.Completeness{}, err
	}
	docs, err := s.store.Documents().ListByCase(ctx, caseID)
	if err != nil {
		return domain.Completeness{}, fmt.Errorf("list documents: %w", err)
	}
	return s.catalogue.Evaluate(docs), nil
}

func (s *IntakeService) IsComplete(ctx context.Context, caseID string) (bool, error) {
	result, err := s.Completeness(ctx, caseID)
	if err != nil {
		return false, err
	}
	return result.Complete, nil
}

// Review stores an agent's verdict on one uploaded document.
func (s *IntakeService) Review(ctx context.Context, actor domain.Actor, caseID, documentID string, status domain.DocumentStatus, note string) (*domain.Document, error) {
	if err := requireStaff(actor, "review documents"); err != nil {
		return nil, err
	}
	if !status.IsReviewOutcome() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "review document", fmt.Errorf("status must be verified or rejected, got %q", status))
	}

	var reviewed *domain.Document
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		doc, err := tx.Documents().GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.CaseID != caseID {
			return domain.WrapError(domain.ErrDocumentNotFound, "review document", fmt.Errorf("id=%s case_id=%s", documentID, caseID))
		}
		now := s.now()
		note = strings.TrimSpace(note)
		if err := tx.Documents().UpdateReview(ctx, documentID, status, actor.ID, note, now); err != nil {
			return err
		}
		doc.Status = status
		doc.ReviewedBy = actor.ID
		doc.ReviewNote = note
		doc.ReviewedAt = &now
		reviewed = doc
		return tx.Events().Append(ctx, &domain.CaseEvent{
			ID:        uuid.NewString(),
			CaseID:    caseID,
			Type:      domain.CaseEventDocumentReviewed,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Note:      fmt.Sprintf("%s %s", doc.DocumentType, status),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

func (s *IntakeService) List(ctx context.Context, caseID string) ([]domain.Document, error) {
	if _, err := s.store.Cases().GetByID(ctx, caseID); err != nil {
		return nil, err
	}
	docs, err := s.store.Documents().ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return s.catalogue.MarkSuperseded(docs), nil
}

func uploadAllowed(c *domain.Case) error {
	if c.Status.AcceptsUploads() {
		return nil
	}
	if c.Status == domain.StatusCompleted {
		return domain.WrapError(domain.ErrAlreadyFinalized, "upload document", fmt.Errorf("case %s", c.ID))
	}
	return domain.WrapError(domain.ErrIllegalState, "upload document", fmt.Errorf("case is %s", c.Status))
}
