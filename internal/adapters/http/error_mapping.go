package httpadapter

import (
	"net/http"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Missing []string `json:"missing,omitempty"`
}

// mapError picks the status and machine-readable code for err. Narrow kinds
// are checked before the broad kind they wrap.
func mapError(err error) (int, string) {
	if _, ok := domain.AsPrecondition(err); ok {
		return http.StatusUnprocessableEntity, "precondition_failed"
	}
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "validation_error"
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case domain.IsKind(err, domain.ErrNoSignatureOnFile):
		return http.StatusNotFound, "no_signature_on_file"
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case domain.IsKind(err, domain.ErrExpired):
		return http.StatusGone, "link_expired"
	case domain.IsKind(err, domain.ErrAlreadyFinalized):
		return http.StatusConflict, "already_finalized"
	case domain.IsKind(err, domain.ErrIllegalState):
		return http.StatusConflict, "illegal_state"
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable, "temporary_failure"
	case domain.IsKind(err, domain.ErrUpstream):
		return http.StatusBadGateway, "upstream_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	if pe, ok := domain.AsPrecondition(err); ok {
		for _, t := range pe.Missing {
			resp.Missing = append(resp.Missing, string(t))
		}
	}
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	writeJSON(w, status, resp)
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

