package domain

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const caseNumberPrefix = "TC-"

// Case is one insurance-termination request.
type Case struct {
	ID                   string     `json:"id"`
	CaseNumber           string     `json:"case_number"`
	ClientID             string     `json:"client_id"`
	AgentID              string     `json:"agent_id"`
	Status               CaseStatus `json:"status"`
	Version              int64      `json:"version"`
	InsuranceCompany     string     `json:"insurance_company"`
	PolicyNumber         string     `json:"policy_number"`
	PolicyType           string     `json:"policy_type,omitempty"`
	TerminationDate      *time.Time `json:"termination_date,omitempty"`
	ReasonForTermination string     `json:"reason_for_termination,omitempty"`
	SecureToken          *string    `json:"-"`
	TokenExpiresAt       *time.Time `json:"token_expires_at,omitempty"`
	RemindedAt           *time.Time `json:"reminded_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// PolicyFields are the agent-supplied attributes of a new case.
type PolicyFields struct {
	InsuranceCompany     string
	PolicyNumber         string
	PolicyType           string
	TerminationDate      *time.Time
	ReasonForTermination string
}

func (p PolicyFields) Normalize() PolicyFields {
	p.InsuranceCompany = strings.TrimSpace(p.InsuranceCompany)
	p.PolicyNumber = strings.TrimSpace(p.PolicyNumber)
	p.PolicyType = strings.TrimSpace(p.PolicyType)
	p.ReasonForTermination = strings.TrimSpace(p.ReasonForTermination)
	return p
}

// Client is the policy holder a case belongs to. Client records are managed
// outside the lifecycle core and only read here.
type Client struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Street     string    `json:"street,omitempty"`
	PostalCode string    `json:"postal_code,omitempty"`
	City       string    `json:"city,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ActorRole string

const (
	RoleClient ActorRole = "client"
	RoleAgent  ActorRole = "agent"
	RoleAdmin  ActorRole = "admin"
	RoleSystem ActorRole = "system"
)

type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

// SystemActor identifies work triggered by the worker.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

func (a Actor) IsStaff() bool {
	return a.Role == RoleAgent || a.Role == RoleAdmin || a.Role == RoleSystem
}

// NewCaseNumber returns a unique, sortable, human-readable case number.
func NewCaseNumber(now time.Time) string {
	return caseNumberPrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

type CaseEventType string

const (
	CaseEventCreated          CaseEventType = "created"
	CaseEventInvitationSent   CaseEventType = "invitation_sent"
	CaseEventInvitationResent CaseEventType = "invitation_resent"
	CaseEventReminderSent     CaseEventType = "reminder_sent"
	CaseEventTokenIssued      CaseEventType = "token_issued"
	CaseEventTokenRevoked     CaseEventType = "token_revoked"
	CaseEventDocumentUploaded CaseEventType = "document_uploaded"
	CaseEventDocumentReviewed CaseEventType = "document_reviewed"
	CaseEventIntakeFinalized  CaseEventType = "intake_finalized"
	CaseEventSignatureBound   CaseEventType = "signature_bound"
	CaseEventCaseCompleted    CaseEventType = "case_completed"
	CaseEventCancelled        CaseEventType = "cancelled"
	CaseEventStatusOverride   CaseEventType = "status_override"
	CaseEventDocumentRendered CaseEventType = "document_rendered"
)

// CaseEvent is one audit-trail entry. Status transitions always carry both
// FromStatus and ToStatus.
type CaseEvent struct {
	ID         string        `json:"id"`
	CaseID     string        `json:"case_id"`
	Type       CaseEventType `json:"type"`
	FromStatus CaseStatus    `json:"from_status,omitempty"`
	ToStatus   CaseStatus    `json:"to_status,omitempty"`
	ActorID    string        `json:"actor_id"`
	ActorRole  ActorRole     `json:"actor_role"`
	Note       string        `json:"note,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// StatusUpdate is a compare-and-swap write of a case status.
type StatusUpdate struct {
	CaseID          string
	From            CaseStatus
	ExpectedVersion int64
	To              CaseStatus
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// CompletionFor returns the completedAt value a case must carry after moving
// to the target status.
func CompletionFor(current *time.Time, to CaseStatus, now time.Time) *time.Time {
	if !to.HoldsCompletion() {
		return nil
	}
	if current != nil {
		keep := *current
		return &keep
	}
	at := now
	return &at
}
