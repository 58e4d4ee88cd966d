package httpadapter

import (
	"context"
	"net/http"

	"github.com/oapi-codegen/runtime/types"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
)

type createCaseBody struct {
	ClientID             string      `json:"client_id"`
	InsuranceCompany     string      `json:"insurance_company"`
	PolicyNumber         string      `json:"policy_number"`
	PolicyType           string      `json:"policy_type,omitempty"`
	TerminationDate      *types.Date `json:"termination_date,omitempty"`
	ReasonForTermination string      `json:"reason_for_termination,omitempty"`
}

type createdCase struct {
	ID         string            `json:"id"`
	CaseNumber string            `json:"case_number"`
	Status     domain.CaseStatus `json:"status"`
}

func (rt *Router) createCase(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var body createCaseBody
	if err := decodeJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}

	policy := domain.PolicyFields{
		InsuranceCompany:     body.InsuranceCompany,
		PolicyNumber:         body.PolicyNumber,
		PolicyType:           body.PolicyType,
		ReasonForTermination: body.ReasonForTermination,
	}
	if body.TerminationDate != nil {
		date := body.TerminationDate.Time
		policy.TerminationDate = &date
	}

	c, err := rt.svc.Cases.Create(r.Context(), actor, ports.CreateCaseRequest{ClientID: body.ClientID, Policy: policy})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdCase{ID: c.ID, CaseNumber: c.CaseNumber, Status: c.Status})
}

func (rt *Router) getCase(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	details, err := rt.svc.Cases.Details(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (rt *Router) sendInvitation(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	rt.invite(w, r, actor, rt.svc.Cases.SendInvitation)
}

func (rt *Router) sendReminder(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	rt.invite(w, r, actor, rt.svc.Cases.SendReminder)
}

type inviteFunc func(ctx context.Context, actor domain.Actor, caseID string) (*ports.InvitationResult, error)

func (rt *Router) invite(w http.ResponseWriter, r *http.Request, actor domain.Actor, send inviteFunc) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := send(r.Context(), actor, caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) cancelCase(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, err := rt.svc.Cases.Cancel(r.Context(), actor, caseID, body.Reason)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) completeCase(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, err := rt.svc.Cases.Complete(r.Context(), actor, caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) overrideStatus(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	status, err := domain.ParseCaseStatus(body.Status)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, err := rt.svc.Cases.OverrideStatus(r.Context(), actor, caseID, status, body.Reason)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) revokeToken(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.svc.Cases.RevokeToken(r.Context(), actor, caseID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listEvents(w http.ResponseWriter, r *http.Request, _ domain.Actor) {
	caseID, err := pathParam(r, "caseID")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	events, err := rt.svc.Cases.Events(r.Context(), caseID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
