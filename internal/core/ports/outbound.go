package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

// Store groups the repositories and runs work in one transaction.
// Repositories obtained from the tx argument of WithinTx share that transaction.
type Store interface {
	Cases() CaseRepository
	Clients() ClientRepository
	Tokens() TokenRepository
	Documents() DocumentRepository
	Signatures() SignatureRepository
	Generated() GeneratedDocumentRepository
	Events() CaseEventRepository
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// CaseRepository persists cases. UpdateStatus is a compare-and-swap on
// status and version and reports ErrConflict when the row moved on.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Case, error)
	UpdateStatus(ctx context.Context, update domain.StatusUpdate) error
	SetToken(ctx context.Context, id string, token *string, expiresAt *time.Time) error
	MarkReminded(ctx context.Context, id string, at time.Time) error
	ListAwaitingReminder(ctx context.Context, lastContactBefore time.Time, limit int) ([]domain.Case, error)
}

type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Client, error)
}

// TokenRepository is the append-only token issuance log.
type TokenRepository interface {
	Insert(ctx context.Context, token *domain.AccessToken) error
	FindByValue(ctx context.Context, value string) (*domain.AccessToken, error)
	LatestActive(ctx context.Context, caseID string) (*domain.AccessToken, error)
	RevokeActive(ctx context.Context, caseID string, at time.Time) (int64, error)
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.Document, error)
	UpdateReview(ctx context.Context, id string, status domain.DocumentStatus, reviewer, note string, at time.Time) error
}

type SignatureRepository interface {
	Create(ctx context.Context, sig *domain.Signature) error
	GetValid(ctx context.Context, caseID string) (*domain.Signature, error)
	InvalidateValid(ctx context.Context, caseID string, at time.Time) (int64, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.Signature, error)
}

type GeneratedDocumentRepository interface {
	Create(ctx context.Context, doc *domain.GeneratedDocument) error
	GetByID(ctx context.Context, id string) (*domain.GeneratedDocument, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.GeneratedDocument, error)
}

type CaseEventRepository interface {
	Append(ctx context.Context, event *domain.CaseEvent) error
	ListByCase(ctx context.Context, caseID string) ([]domain.CaseEvent, error)
}

// ObjectStorage stores uploaded documents and rendered files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Invitation is what the mailer needs to reach the client.
type Invitation struct {
	CaseID         string
	CaseNumber     string
	ClientName     string
	ClientEmail    string
	PortalURL      string
	TokenExpiresAt time.Time
}

// Mailer delivers client emails and returns the provider message id.
type Mailer interface {
	SendInvitation(ctx context.Context, inv Invitation) (string, error)
	SendReminder(ctx context.Context, inv Invitation) (string, error)
}

// Renderer turns a template plus fields into document bytes.
type Renderer interface {
	Render(ctx context.Context, in domain.RenderInput) ([]byte, error)
	ContentType() string
}

// FileInspector validates uploaded bytes and reports the detected content type.
type FileInspector interface {
	Inspect(filename string, data []byte) (string, error)
}

type TemplateCatalog interface {
	Template(id string) (domain.Template, error)
	Templates() []domain.Template
}

// LifecycleEvent is published after a state change commits.
type LifecycleEvent struct {
	Type       domain.CaseEventType `json:"type"`
	CaseID     string               `json:"case_id"`
	FromStatus domain.CaseStatus    `json:"from_status,omitempty"`
	ToStatus   domain.CaseStatus    `json:"to_status,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, eventType domain.CaseEventType, handler func(context.Context, LifecycleEvent) error) error
}

// LifecycleMetrics receives domain counters. Implementations must be safe
// for concurrent use.
type LifecycleMetrics interface {
	RecordTransition(event domain.Event, from, to domain.CaseStatus)
	RecordTransitionRejected(event domain.Event, reason string)
	RecordSignatureBound(source domain.SignatureSource)
	RecordRender(signed bool, err error)
	RecordUpload(docType domain.DocumentType)
	RecordPublishFailure(eventType domain.CaseEventType)
}
