package ports

import (
	"context"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

// CaseManager is the inbound contract for agent-driven lifecycle actions.
type CaseManager interface {
	Create(ctx context.Context, actor domain.Actor, req CreateCaseRequest) (*domain.Case, error)
	Details(ctx context.Context, caseID string) (*CaseDetails, error)
	SendInvitation(ctx context.Context, actor domain.Actor, caseID string) (*InvitationResult, error)
	SendReminder(ctx context.Context, actor domain.Actor, caseID string) (*InvitationResult, error)
	Cancel(ctx context.Context, actor domain.Actor, caseID, reason string) (*domain.Case, error)
	Complete(ctx context.Context, actor domain.Actor, caseID string) (*domain.Case, error)
	OverrideStatus(ctx context.Context, actor domain.Actor, caseID string, status domain.CaseStatus, reason string) (*domain.Case, error)
	RevokeToken(ctx context.Context, actor domain.Actor, caseID string) error
	Events(ctx context.Context, caseID string) ([]domain.CaseEvent, error)
}

// IntakeTracker is the inbound contract for document intake.
type IntakeTracker interface {
	Upload(ctx context.Context, actor domain.Actor, caseID string, req UploadRequest) (*domain.Document, error)
	Review(ctx context.Context, actor domain.Actor, caseID, documentID string, status domain.DocumentStatus, note string) (*domain.Document, error)
	Completeness(ctx context.Context, caseID string) (domain.Completeness, error)
	List(ctx context.Context, caseID string) ([]domain.Document, error)
}

// SignatureBinder is the inbound contract for binding signatures to cases.
type SignatureBinder interface {
	Bind(ctx context.Context, actor domain.Actor, req BindRequest) (*BindResult, error)
	GetAuthoritative(ctx context.Context, caseID string) (*domain.Signature, error)
	History(ctx context.Context, caseID string) ([]domain.Signature, error)
}

// DocumentGenerator is the inbound contract for the rendering pipeline.
type DocumentGenerator interface {
	Render(ctx context.Context, actor domain.Actor, caseID, templateID string) (*domain.GeneratedDocument, error)
	ApplySignatureToExisting(ctx context.Context, actor domain.Actor, caseID string, documentIDs []string) ([]domain.ApplyResult, error)
	Export(ctx context.Context, caseID, documentID string) (*domain.ExportFile, error)
	List(ctx context.Context, caseID string) ([]domain.GeneratedDocument, error)
}

// ClientPortal is the inbound contract for token-authorized client actions.
type ClientPortal interface {
	Enter(ctx context.Context, token string) (*PortalSummary, error)
	Upload(ctx context.Context, token string, req UploadRequest) (*domain.Document, error)
	Finalize(ctx context.Context, token string) (*FinalizeResult, error)
	Sign(ctx context.Context, token string, req PortalSignRequest) (*BindResult, error)
}

// SignatureBoundHandler reacts to committed signature bindings.
type SignatureBoundHandler interface {
	HandleSignatureBound(ctx context.Context, event LifecycleEvent) error
}

// ReminderRunner sends due reminders in one sweep.
type ReminderRunner interface {
	Run(ctx context.Context) (ReminderReport, error)
}
