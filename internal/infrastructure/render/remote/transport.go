package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/termination-portal/internal/infrastructure/resilience"
)

const maxRenderedBytes = 32 << 20

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "render service status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("render service %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("render service %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func (r *Renderer) postForBytes(ctx context.Context, path string, payload any, operation string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", r.contentType)
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render service %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRenderedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}
	if len(data) > maxRenderedBytes {
		return nil, fmt.Errorf("render service %s response exceeds %d bytes", operation, maxRenderedBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("render service %s returned an empty document", operation)
	}
	return data, nil
}

func classifyRenderError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.Permanent
}
