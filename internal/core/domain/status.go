package domain

import (
	"fmt"
	"strings"
)

type CaseStatus string

const (
	StatusDraft             CaseStatus = "draft"
	StatusEmailSent         CaseStatus = "email_sent"
	StatusDocumentsUploaded CaseStatus = "documents_uploaded"
	StatusSigned            CaseStatus = "signed"
	StatusCompleted         CaseStatus = "completed"
	StatusCancelled         CaseStatus = "cancelled"

	// statusPendingDocumentsAlias is an older name for email_sent that still
	// arrives from some entry points and legacy rows.
	statusPendingDocumentsAlias = "pending_documents"
)

var statusRank = map[CaseStatus]int{
	StatusDraft:             0,
	StatusEmailSent:         1,
	StatusDocumentsUploaded: 2,
	StatusSigned:            3,
	StatusCompleted:         4,
}

// ParseCaseStatus normalizes a stored or requested status to the canonical enum.
func ParseCaseStatus(raw string) (CaseStatus, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == statusPendingDocumentsAlias {
		return StatusEmailSent, nil
	}
	status := CaseStatus(value)
	if status == StatusCancelled {
		return status, nil
	}
	if _, ok := statusRank[status]; !ok {
		return "", WrapError(ErrInvalidInput, "parse case status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

func (s CaseStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HoldsCompletion reports whether completedAt must be set for the status.
func (s CaseStatus) HoldsCompletion() bool {
	return s == StatusSigned || s == StatusCompleted
}

// AcceptsUploads reports whether the client may still add documents.
func (s CaseStatus) AcceptsUploads() bool {
	return s == StatusEmailSent || s == StatusDocumentsUploaded
}

type Event string

const (
	EventInvitationSent  Event = "invitation_sent"
	EventIntakeFinalized Event = "intake_finalized"
	EventSignatureBound  Event = "signature_bound"
	EventCaseCompleted   Event = "case_completed"
	EventCancelled       Event = "cancelled"
	EventStatusOverride  Event = "status_override"
)

type transitionRule struct {
	from []CaseStatus
	to   CaseStatus
}

var transitionTable = map[Event]transitionRule{
	EventInvitationSent:  {from: []CaseStatus{StatusDraft}, to: StatusEmailSent},
	EventIntakeFinalized: {from: []CaseStatus{StatusEmailSent}, to: StatusDocumentsUploaded},
	EventSignatureBound:  {from: []CaseStatus{StatusDocumentsUploaded, StatusSigned}, to: StatusSigned},
	EventCaseCompleted:   {from: []CaseStatus{StatusDocumentsUploaded, StatusSigned}, to: StatusCompleted},
	EventCancelled: {
		from: []CaseStatus{StatusDraft, StatusEmailSent, StatusDocumentsUploaded, StatusSigned},
		to:   StatusCancelled,
	},
}

// NextStatus resolves the target of an event fired from the given status.
//
// A status that is not an entry state of the event is classified: finished
// cases report ErrAlreadyFinalized, a case already moved past the entry states
// reports ErrConflict (someone else advanced it first) and anything else is
// ErrIllegalState.
func NextStatus(event Event, from CaseStatus) (CaseStatus, error) {
	rule, ok := transitionTable[event]
	if !ok {
		return "", WrapError(ErrInvalidInput, "resolve transition", fmt.Errorf("unknown event %q", event))
	}
	for _, allowed := range rule.from {
		if allowed == from {
			return rule.to, nil
		}
	}

	switch {
	case from == StatusCompleted:
		return "", WrapError(ErrAlreadyFinalized, string(event), fmt.Errorf("case is %s", from))
	case from == StatusCancelled:
		return "", WrapError(ErrIllegalState, string(event), fmt.Errorf("case is cancelled"))
	case statusRank[from] > maxRank(rule.from):
		return "", WrapError(ErrConflict, string(event), fmt.Errorf("case already advanced to %s", from))
	default:
		return "", WrapError(ErrIllegalState, string(event), fmt.Errorf("case is %s, event requires %s", from, joinStatuses(rule.from)))
	}
}

// AllowedEvents lists the events that may fire from a status.
func AllowedEvents(from CaseStatus) []Event {
	order := []Event{EventInvitationSent, EventIntakeFinalized, EventSignatureBound, EventCaseCompleted, EventCancelled}
	out := make([]Event, 0, len(order))
	for _, ev := range order {
		if _, err := NextStatus(ev, from); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

// IsForward reports whether moving from one status to another keeps the
// lifecycle monotonic. Cancellation counts as forward from every non-terminal status.
func IsForward(from, to CaseStatus) bool {
	if to == StatusCancelled {
		return !from.IsTerminal()
	}
	if from == StatusCancelled {
		return false
	}
	return statusRank[to] >= statusRank[from]
}

func maxRank(statuses []CaseStatus) int {
	best := -1
	for _, s := range statuses {
		if s == StatusCancelled {
			continue
		}
		if r := statusRank[s]; r > best {
			best = r
		}
	}
	return best
}

func joinStatuses(statuses []CaseStatus) string {
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, "|")
}
