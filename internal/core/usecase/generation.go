package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

const DefaultRenderConcurrency = 4

// GenerationService renders templates for a case. Every render appends a new
// GeneratedDocument; signing an existing rendition produces a new one that
// points back at its source.
type GenerationService struct {
	store       ports.Store
	storage     ports.ObjectStorage
	renderer    ports.Renderer
	templates   ports.TemplateCatalog
	metrics     ports.LifecycleMetrics
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

func NewGenerationService(
	store ports.Store,
	storage ports.ObjectStorage,
	renderer ports.Renderer,
	templates ports.TemplateCatalog,
	metrics ports.LifecycleMetrics,
	logger *slog.Logger,
	concurrency int,
) *GenerationService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = DefaultRenderConcurrency
	}
	return &GenerationService{
		store:       store,
		storage:     storage,
		renderer:    renderer,
		templates:   templates,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		now:         utcNow,
	}
}

// renderContext is what every rendition of one case shares.
type renderContext struct {
	c         *domain.Case
	client    *domain.Client
	signature *domain.Signature
}

func (s *GenerationService) Render(ctx context.Context, actor domain.Actor, caseID, templateID string) (*domain.GeneratedDocument, error) {
	if err := requireStaff(actor, "render documents"); err != nil {
		return nil, err
	}
	tmpl, err := s.templates.Template(strings.TrimSpace(templateID))
	if err != nil {
		return nil, err
	}
	rc, err := s.loadContext(ctx, caseID, false)
	if err != nil {
		return nil, err
	}
	return s.produce(ctx, actor, rc, tmpl, "")
}

// ApplySignatureToExisting re-renders the given renditions with the current
// signature. Items fail independently; results keep the input order.
func (s *GenerationService) ApplySignatureToExisting(ctx context.Context, actor domain.Actor, caseID string, documentIDs []string) ([]domain.ApplyResult, error) {
	if err := requireStaff(actor, "apply signature to documents"); err != nil {
		return nil, err
	}
	if len(documentIDs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "apply signature", fmt.Errorf("document ids are required"))
	}
	rc, err := s.loadContext(ctx, caseID, true)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ApplyResult, len(documentIDs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range documentIDs {
		g.Go(func() error {
			generated, err := s.applyOne(ctx, actor, rc, strings.TrimSpace(id))
			results[i] = domain.ApplyResult{DocumentID: id, OK: err == nil, Generated: generated}
			if err != nil {
				results[i].Error = err.Error()
				results[i].Kind = errorKind(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (s *GenerationService) applyOne(ctx context.Context, actor domain.Actor, rc renderContext, documentID string) (*domain.GeneratedDocument, error) {
	source, err := s.store.Generated().GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if source.CaseID != rc.c.ID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "apply signature", fmt.Errorf("id=%s case_id=%s", documentID, rc.c.ID))
	}
	tmpl, err := s.templates.Template(source.TemplateID)
	if err != nil {
		return nil, err
	}
	return s.produce(ctx, actor, rc, tmpl, source.ID)
}

func (s *GenerationService) loadContext(ctx context.Context, caseID string, requireSignature bool) (renderContext, error) {
	c, err := s.store.Cases().GetByID(ctx, caseID)
	if err != nil {
		return renderContext{}, err
	}
	client, err := s.store.Clients().GetByID(ctx, c.ClientID)
	if err != nil {
		return renderContext{}, err
	}
	sig, err := s.store.Signatures().GetValid(ctx, caseID)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrNoSignatureOnFile) && !requireSignature:
		sig = nil
	default:
		return renderContext{}, err
	}
	return renderContext{c: c, client: client, signature: sig}, nil
}

func (s *GenerationService) produce(ctx context.Context, actor domain.Actor, rc renderContext, tmpl domain.Template, sourceID string) (*domain.GeneratedDocument, error) {
	now := s.now()
	in := domain.RenderInput{
		Template: tmpl,
		Fields:   domain.RenderFields(rc.c, rc.client, now),
	}
	if rc.signature != nil {
		signedAt := rc.signature.SignedAt
		in.SignatureImage = rc.signature.Data
		in.SignedAt = &signedAt
	}

	data, err := s.renderer.Render(ctx, in)
	if err != nil {
		err = upstreamError("render document", err)
		s.metrics.RecordRender(rc.signature != nil, err)
		return nil, err
	}

	contentType := s.renderer.ContentType()
	doc := &domain.GeneratedDocument{
		ID:               uuid.NewString(),
		CaseID:           rc.c.ID,
		TemplateID:       tmpl.ID,
		ContentType:      contentType,
		SizeBytes:        int64(len(data)),
		SourceDocumentID: sourceID,
		CreatedBy:        actor.ID,
		CreatedAt:        now,
	}
	sum := sha256.Sum256(data)
	doc.SHA256 = hex.EncodeToString(sum[:])
	doc.BlobRef = fmt.Sprintf("cases/%s/generated/%s.%s", rc.c.ID, doc.ID, extensionFor(contentType))
	if rc.signature != nil {
		doc.IsSigned = true
		doc.SignedAt = in.SignedAt
		doc.SignatureID = rc.signature.ID
	}

	if err := s.storage.Save(ctx, doc.BlobRef, bytes.NewReader(data)); err != nil {
		err = upstreamError("store rendered document", err)
		s.metrics.RecordRender(doc.IsSigned, err)
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		if err := tx.Generated().Create(ctx, doc); err != nil {
			return fmt.Errorf("insert generated document: %w", err)
		}
		note := tmpl.ID
		if doc.IsSigned {
			note += " signed"
		}
		return tx.Events().Append(ctx, &domain.CaseEvent{
			ID:        uuid.NewString(),
			CaseID:    rc.c.ID,
			Type:      domain.CaseEventDocumentRendered,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Note:      note,
			CreatedAt: now,
		})
	})
	s.metrics.RecordRender(doc.IsSigned, err)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *GenerationService) Export(ctx context.Context, caseID, documentID string) (*domain.ExportFile, error) {
	doc, err := s.store.Generated().GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.CaseID != caseID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "export document", fmt.Errorf("id=%s case_id=%s", documentID, caseID))
	}
	c, err := s.store.Cases().GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	clientName := ""
	if client, err := s.store.Clients().GetByID(ctx, c.ClientID); err == nil {
		clientName = client.FullName
	} else if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, err
	}

	body, err := s.storage.Open(ctx, doc.BlobRef)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, upstreamError("open rendered document", err)
	}
	return &domain.ExportFile{
		Filename:    domain.ExportFilename(c.CaseNumber, clientName, extensionFor(doc.ContentType)),
		ContentType: doc.ContentType,
		Size:        doc.SizeBytes,
		Body:        body,
	}, nil
}

func (s *GenerationService) List(ctx context.Context, caseID string) ([]domain.GeneratedDocument, error) {
	if _, err := s.store.Cases().GetByID(ctx, caseID); err != nil {
		return nil, err
	}
	docs, err := s.store.Generated().ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list generated documents: %w", err)
	}
	return docs, nil
}

// SignedRenditionHandler applies a freshly bound signature to the newest
// unsigned rendition of every template of the case.
type SignedRenditionHandler struct {
	generator *GenerationService
	logger    *slog.Logger
}

func NewSignedRenditionHandler(generator *GenerationService, logger *slog.Logger) *SignedRenditionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignedRenditionHandler{generator: generator, logger: logger}
}

func (h *SignedRenditionHandler) HandleSignatureBound(ctx context.Context, event ports.LifecycleEvent) error {
	if strings.TrimSpace(event.CaseID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "handle signature bound", fmt.Errorf("case id is empty"))
	}
	docs, err := h.generator.List(ctx, event.CaseID)
	if err != nil {
		return err
	}
	pending := domain.LatestUnsignedPerTemplate(docs)
	if len(pending) == 0 {
		return nil
	}
	ids := make([]string, 0, len(pending))
	for _, doc := range pending {
		ids = append(ids, doc.ID)
	}

	results, err := h.generator.ApplySignatureToExisting(ctx, domain.SystemActor, event.CaseID, ids)
	if err != nil {
		if domain.IsKind(err, domain.ErrNoSignatureOnFile) {
			// Signature was invalidated before the event arrived.
			h.logger.Info("signed_rendition_skipped", "case_id", event.CaseID, "reason", "no_signature_on_file")
			return nil
		}
		return err
	}

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
			h.logger.Warn("signed_rendition_failed", "case_id", event.CaseID, "document_id", r.DocumentID, "error", r.Error)
		}
	}
	h.logger.Info("signed_renditions_applied", "case_id", event.CaseID, "total", len(results), "failed", failed)
	if failed > 0 {
		return domain.WrapError(domain.ErrTemporary, "handle signature bound", fmt.Errorf("%d of %d renditions failed", failed, len(results)))
	}
	return nil
}
