package httpadapter

import (
	"net/http"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

// writePortalError answers token failures with client-facing wording; the
// portal never reveals whether a token existed.
func (rt *Router) writePortalError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsKind(err, domain.ErrTokenNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", "this link is not valid")
	case domain.IsKind(err, domain.ErrTokenExpired):
		writeProblem(w, http.StatusGone, "link_expired", "this link has expired, please ask your agent for a new one")
	default:
		rt.writeError(w, r, err)
	}
}

func (rt *Router) enterPortal(w http.ResponseWriter, r *http.Request) {
	token, err := pathParam(r, "token")
	if err != nil {
		rt.writePortalError(w, r, domain.WrapError(domain.ErrTokenNotFound, "enter portal", err))
		return
	}
	summary, err := rt.svc.Portal.Enter(r.Context(), token)
	if err != nil {
		rt.writePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) portalUpload(w http.ResponseWriter, r *http.Request) {
	token, err := pathParam(r, "token")
	if err != nil {
		rt.writePortalError(w, r, domain.WrapError(domain.ErrTokenNotFound, "portal upload", err))
		return
	}
	u, err := rt.readUpload(w, r)
	if err != nil {
		rt.writeUploadError(w, r, err)
		return
	}
	defer u.Close()

	doc, err := rt.svc.Portal.Upload(r.Context(), token, u.UploadRequest)
	if err != nil {
		rt.writePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) finalizeIntake(w http.ResponseWriter, r *http.Request) {
	token, err := pathParam(r, "token")
	if err != nil {
		rt.writePortalError(w, r, domain.WrapError(domain.ErrTokenNotFound, "finalize intake", err))
		return
	}
	res, err := rt.svc.Portal.Finalize(r.Context(), token)
	if err != nil {
		rt.writePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) portalSign(w http.ResponseWriter, r *http.Request) {
	token, err := pathParam(r, "token")
	if err != nil {
		rt.writePortalError(w, r, domain.WrapError(domain.ErrTokenNotFound, "portal sign", err))
		return
	}
	var body struct {
		SignatureData string `json:"signature_data"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	data, err := domain.DecodeSignatureImage(body.SignatureData)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.svc.Portal.Sign(r.Context(), token, ports.PortalSignRequest{
		Data:      data,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		rt.writePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
