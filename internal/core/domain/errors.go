package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrIllegalState = errors.New("illegal state")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream failure")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrTemporary    = errors.New("temporary failure")
)

// Narrower kinds keep the broad kind in their chain, so IsKind(err, ErrNotFound)
// holds for a missing case as well.
var (
	ErrCaseNotFound      = fmt.Errorf("case %w", ErrNotFound)
	ErrClientNotFound    = fmt.Errorf("client %w", ErrNotFound)
	ErrTokenNotFound     = fmt.Errorf("token %w", ErrNotFound)
	ErrDocumentNotFound  = fmt.Errorf("document %w", ErrNotFound)
	ErrTemplateNotFound  = fmt.Errorf("template %w", ErrNotFound)
	ErrNoSignatureOnFile = fmt.Errorf("no signature on file: %w", ErrNotFound)
	ErrTokenExpired      = fmt.Errorf("token %w", ErrExpired)
	ErrAlreadyFinalized  = fmt.Errorf("case already finalized: %w", ErrIllegalState)
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// PreconditionError reports a guard that did not hold for a transition.
// Missing lists the document types that still block intake finalization.
type PreconditionError struct {
	Event   Event
	Status  CaseStatus
	Missing []DocumentType
	Reason  string
}

func (e *PreconditionError) Error() string {
	if e == nil {
		return "precondition failed"
	}
	if len(e.Missing) > 0 {
		names := make([]string, 0, len(e.Missing))
		for _, t := range e.Missing {
			names = append(names, string(t))
		}
		return fmt.Sprintf("%s: missing: %s", e.Event, strings.Join(names, ", "))
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("%s: precondition failed in status %s", e.Event, e.Status)
}

func (e *PreconditionError) Unwrap() error { return ErrIllegalState }

// AsPrecondition extracts a PreconditionError from an error chain.
func AsPrecondition(err error) (*PreconditionError, bool) {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
