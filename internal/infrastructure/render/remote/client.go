// Package remote renders documents through an external HTTP render service.
package remote

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/infrastructure/resilience"
)

const defaultContentType = "application/pdf"

type Renderer struct {
	baseURL     string
	apiKey      string
	contentType string
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Options struct {
	APIKey             string
	ContentType        string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, opts Options) *Renderer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	contentType := strings.TrimSpace(opts.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Renderer{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      opts.APIKey,
		contentType: contentType,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    opts.ResilienceExecutor,
	}
}

func (r *Renderer) ContentType() string { return r.contentType }

type renderRequest struct {
	TemplateID    string            `json:"template_id"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	Fields        map[string]string `json:"fields"`
	SignaturePNG  string            `json:"signature_png,omitempty"`
	SignedAt      *time.Time        `json:"signed_at,omitempty"`
	AcceptedTypes []string          `json:"accepted_types"`
}

func (r *Renderer) Render(ctx context.Context, in domain.RenderInput) ([]byte, error) {
	req := renderRequest{
		TemplateID:    in.Template.ID,
		Title:         in.Template.Title,
		Body:          in.Template.Body,
		Fields:        in.Fields,
		SignedAt:      in.SignedAt,
		AcceptedTypes: []string{r.contentType},
	}
	if len(in.SignatureImage) > 0 {
		req.SignaturePNG = base64.StdEncoding.EncodeToString(in.SignatureImage)
	}

	var out []byte
	call := func(ctx context.Context) error {
		data, err := r.postForBytes(ctx, "/v1/render", req, "render")
		if err != nil {
			return err
		}
		out = data
		return nil
	}

	var err error
	if r.executor != nil {
		err = r.executor.Execute(ctx, "remote.render", call, classifyRenderError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, resilience.WrapTemporary("remote render", err, classifyRenderError)
	}
	return out, nil
}
