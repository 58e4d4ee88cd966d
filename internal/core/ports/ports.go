package ports

import (
	"io"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

type CreateCaseRequest struct {
	ClientID string
	Policy   domain.PolicyFields
}

type UploadRequest struct {
	DocumentType string
	Filename     string
	Body         io.Reader
}

type BindRequest struct {
	CaseID   string
	Data     []byte
	SignerID string
	Metadata domain.SignatureMetadata
	// Complete moves the case straight to completed instead of signed.
	Complete bool
}

type BindResult struct {
	Signature *domain.Signature `json:"signature"`
	Status    domain.CaseStatus `json:"status"`
}

type PortalSignRequest struct {
	Data      []byte
	IPAddress string
	UserAgent string
}

type InvitationResult struct {
	CaseID         string            `json:"case_id"`
	Status         domain.CaseStatus `json:"status"`
	MessageID      string            `json:"message_id"`
	PortalURL      string            `json:"portal_url"`
	TokenExpiresAt time.Time         `json:"token_expires_at"`
}

type FinalizeResult struct {
	Status       domain.CaseStatus   `json:"status"`
	Completeness domain.Completeness `json:"completeness"`
}

// PortalSummary is the client-visible projection of a case.
type PortalSummary struct {
	CaseNumber       string                `json:"case_number"`
	Status           domain.CaseStatus     `json:"status"`
	InsuranceCompany string                `json:"insurance_company"`
	PolicyNumber     string                `json:"policy_number"`
	PolicyType       string                `json:"policy_type,omitempty"`
	ClientName       string                `json:"client_name"`
	TokenExpiresAt   time.Time             `json:"token_expires_at"`
	Documents        []domain.DocumentKind `json:"documents"`
	Completeness     domain.Completeness   `json:"completeness"`
	Signed           bool                  `json:"signed"`
}

type CaseDetails struct {
	Case         *domain.Case               `json:"case"`
	Client       *domain.Client             `json:"client"`
	Documents    []domain.Document          `json:"documents"`
	Completeness domain.Completeness        `json:"completeness"`
	Signature    *domain.Signature          `json:"signature,omitempty"`
	Generated    []domain.GeneratedDocument `json:"generated"`
	Events       []domain.CaseEvent         `json:"events"`
	NextEvents   []domain.Event             `json:"next_events"`
}

type ReminderReport struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}
