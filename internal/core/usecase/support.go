package usecase

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

func utcNow() time.Time {
	return time.Now().UTC()
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(domain.Event, domain.CaseStatus, domain.CaseStatus) {}
func (noopMetrics) RecordTransitionRejected(domain.Event, string)                       {}
func (noopMetrics) RecordSignatureBound(domain.SignatureSource)                         {}
func (noopMetrics) RecordRender(bool, error)                                            {}
func (noopMetrics) RecordUpload(domain.DocumentType)                                    {}
func (noopMetrics) RecordPublishFailure(domain.CaseEventType)                           {}

func requireStaff(actor domain.Actor, operation string) error {
	if actor.IsStaff() {
		return nil
	}
	return domain.WrapError(domain.ErrForbidden, operation, fmt.Errorf("role %q may not %s", actor.Role, operation))
}

// upstreamError marks collaborator failures, keeping kinds the collaborator
// already assigned.
func upstreamError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrUpstream) || domain.IsKind(err, domain.ErrInvalidInput) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrUpstream, operation, err)
}

// errorKind names the error class for per-item batch results.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsKind(err, domain.ErrNotFound):
		return "not_found"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "validation_error"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary_failure"
	case domain.IsKind(err, domain.ErrUpstream):
		return "upstream_failure"
	case domain.IsKind(err, domain.ErrConflict):
		return "conflict"
	case domain.IsKind(err, domain.ErrIllegalState):
		return "illegal_state"
	default:
		return "error"
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return "pdf"
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	default:
		return "bin"
	}
}
