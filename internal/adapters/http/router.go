package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
	"github.com/kirillkom/termination-portal/internal/observability/metrics"
)

const (
	portalPrefix        = "/v1/portal/"
	maxJSONBodyBytes    = 1 << 20
	multipartOverhead   = 1 << 20
	defaultUploadLimit  = 10 << 20
	multipartMemory     = 8 << 20
	defaultBackpressure = 250 * time.Millisecond
)

type Services struct {
	Cases      ports.CaseManager
	Intake     ports.IntakeTracker
	Signatures ports.SignatureBinder
	Generator  ports.DocumentGenerator
	Portal     ports.ClientPortal
}

type Options struct {
	Service              string
	MaxInFlight          int
	BackpressureWait     time.Duration
	PortalRateLimitRPS   float64
	PortalRateLimitBurst int
	MaxUploadBytes       int64
	Metrics              *metrics.HTTPServerMetrics
	Logger               *slog.Logger
}

type Router struct {
	svc       Services
	auth      *StaffAuthenticator
	opts      Options
	logger    *slog.Logger
	validator *requestValidator
	limiter   *ipRateLimiter
}

func NewRouter(ctx context.Context, svc Services, auth *StaffAuthenticator, opts Options) (*Router, error) {
	if auth == nil {
		return nil, errors.New("staff authenticator is required")
	}
	validator, err := newRequestValidator(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Service == "" {
		opts.Service = "termination-api"
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = defaultBackpressure
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultUploadLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		svc:       svc,
		auth:      auth,
		opts:      opts,
		logger:    logger,
		validator: validator,
		limiter:   newIPRateLimiter(opts.PortalRateLimitRPS, opts.PortalRateLimitBurst),
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
	}

	mux.HandleFunc("POST /v1/cases", rt.staff(rt.createCase))
	mux.HandleFunc("GET /v1/cases/{caseID}", rt.staff(rt.getCase))
	mux.HandleFunc("POST /v1/cases/{caseID}/invitation", rt.staff(rt.sendInvitation))
	mux.HandleFunc("POST /v1/cases/{caseID}/reminder", rt.staff(rt.sendReminder))
	mux.HandleFunc("POST /v1/cases/{caseID}/cancel", rt.staff(rt.cancelCase))
	mux.HandleFunc("POST /v1/cases/{caseID}/complete", rt.staff(rt.completeCase))
	mux.HandleFunc("POST /v1/cases/{caseID}/status", rt.staff(rt.overrideStatus))
	mux.HandleFunc("DELETE /v1/cases/{caseID}/token", rt.staff(rt.revokeToken))
	mux.HandleFunc("GET /v1/cases/{caseID}/events", rt.staff(rt.listEvents))
	mux.HandleFunc("GET /v1/cases/{caseID}/documents", rt.staff(rt.listDocuments))
	mux.HandleFunc("POST /v1/cases/{caseID}/documents", rt.staff(rt.uploadDocument))
	mux.HandleFunc("PATCH /v1/cases/{caseID}/documents/{documentID}", rt.staff(rt.reviewDocument))
	mux.HandleFunc("GET /v1/cases/{caseID}/intake", rt.staff(rt.getCompleteness))
	mux.HandleFunc("GET /v1/cases/{caseID}/signature", rt.staff(rt.getSignature))
	mux.HandleFunc("POST /v1/cases/{caseID}/signature", rt.staff(rt.applyAgentSignature))
	mux.HandleFunc("GET /v1/cases/{caseID}/signatures", rt.staff(rt.listSignatures))
	mux.HandleFunc("GET /v1/cases/{caseID}/generated", rt.staff(rt.listGenerated))
	mux.HandleFunc("POST /v1/cases/{caseID}/generated", rt.staff(rt.renderDocument))
	mux.HandleFunc("POST /v1/cases/{caseID}/generated/sign", rt.staff(rt.applySignatureToExisting))
	mux.HandleFunc("GET /v1/cases/{caseID}/generated/{documentID}/content", rt.staff(rt.exportDocument))

	mux.HandleFunc("GET /v1/portal/{token}", rt.enterPortal)
	mux.HandleFunc("POST /v1/portal/{token}/documents", rt.portalUpload)
	mux.HandleFunc("POST /v1/portal/{token}/finalize", rt.finalizeIntake)
	mux.HandleFunc("POST /v1/portal/{token}/signature", rt.portalSign)

	var handler http.Handler = mux
	handler = rt.validator.middleware(handler)
	handler = rateLimitMiddleware(handler, rt.limiter, rt.recordRejected)
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureWait, rt.recordRejected)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) recordRejected(reason string) {
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordRejected(rt.opts.Service, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathParam binds a simple-style path segment.
func pathParam(r *http.Request, name string) (string, error) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, r.PathValue(name), &value, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind path parameter", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind path parameter", fmt.Errorf("%s is required", name))
	}
	return value, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", err)
	}
	if dec.More() {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", errors.New("body must hold a single json object"))
	}
	return nil
}

// decodeOptionalJSON accepts an absent body and leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(w, r, dst)
	if err != nil && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
