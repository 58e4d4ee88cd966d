package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

// upload is a parsed multipart upload. Close releases spooled parts.
type upload struct {
	ports.UploadRequest
	file multipart.File
	form *multipart.Form
}

func (u *upload) Close() {
	if u.file != nil {
		_ = u.file.Close()
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errPayloadTooLarge
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse upload", err)
	}
	u := &upload{form: r.MultipartForm}

	file, header, err := r.FormFile("file")
	if err != nil {
		u.Close()
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse upload", errors.New("multipart field 'file' is required"))
	}
	u.file = file
	if header.Size > rt.opts.MaxUploadBytes {
		u.Close()
		return nil, errPayloadTooLarge
	}
	u.UploadRequest = ports.UploadRequest{
		DocumentType: strings.TrimSpace(r.FormValue("document_type")),
		Filename:     header.Filename,
		Body:         file,
	}
	return u, nil
}

var errPayloadTooLarge = errors.New("upload exceeds size limit")

func (rt *Router) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		writeProblem(w, http.StatusRequestEntityTooLarge, "payload_too_large",
			fmt.Sprintf("file exceeds %d bytes", rt.opts.MaxUploadBytes))
		return
	}
	rt.writeError(w, r, err)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	u, err := rt.readUpload(w, r)
	if err != nil {
		rt.writeUploadError(w, r, err)
		return
	}
	defer u.Close()

	doc, err := rt.svc.Intake.Upload(r.Context(), actor, caseID, u.UploadRequest)
	if err != nil {
		rt.writeUploadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	docs, err := rt.svc.Intake.List(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) reviewDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	documentID, err := pathParam(r, "documentID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var body struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Intake.Review(r.Context(), actor, caseID, documentID, domain.DocumentStatus(body.Status), body.Note)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getCompleteness(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	completeness, err := rt.svc.Intake.Completeness(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completeness)
}

type agentSignatureBody struct {
	SignatureData    string `json:"signature_data"`
	Complete         bool   `json:"complete"`
	ConsentReference string `json:"consent_reference"`
}

func (rt *Router) applyAgentSignature(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var body agentSignatureBody
	if err := decodeJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	data, err := domain.DecodeSignatureImage(body.SignatureData)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.svc.Signatures.Bind(r.Context(), actor, ports.BindRequest{
		CaseID:   caseID,
		Data:     data,
		SignerID: actor.ID,
		Metadata: domain.SignatureMetadata{
			Source:           domain.SourceAgentApplied,
			IPAddress:        clientIP(r),
			UserAgent:        r.UserAgent(),
			ConsentReference: strings.TrimSpace(body.ConsentReference),
		},
		Complete: body.Complete,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (rt *Router) getSignature(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	sig, err := rt.svc.Signatures.GetAuthoritative(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (rt *Router) listSignatures(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	history, err := rt.svc.Signatures.History(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signatures": history})
}

func (rt *Router) listGenerated(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	docs, err := rt.svc.Generator.List(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"generated": docs})
}

func (rt *Router) renderDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var body struct {
		TemplateID string `json:"template_id"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Generator.Render(r.Context(), actor, caseID, body.TemplateID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) applySignatureToExisting(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var body struct {
		DocumentIDs []string `json:"document_ids"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	results, err := rt.svc.Generator.ApplySignatureToExisting(r.Context(), actor, caseID, body.DocumentIDs)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) exportDocument(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	documentID, err := pathParam(r, "documentID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	file, err := rt.svc.Generator.Export(r.Context(), caseID, documentID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer file.Body.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file.Body); err != nil {
		rt.logger.Warn("export_stream_failed",
			"request_id", requestIDFromContext(r.Context()),
			"case_id", caseID,
			"document_id", documentID,
			"error", err,
		)
	}
}
