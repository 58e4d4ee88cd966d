package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/infrastructure/resilience"
)

func input() domain.RenderInput {
	signedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return domain.RenderInput{
		Template:       domain.Template{ID: "termination_letter", Title: "Termination", Body: "Policy {{ policy_number }}"},
		Fields:         map[string]string{"policy_number": "PN-1"},
		SignatureImage: []byte{0x89, 'P', 'N', 'G'},
		SignedAt:       &signedAt,
	}
}

func TestRenderPostsTemplateAndReturnsBytes(t *testing.T) {
	var payload renderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/render" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 rendered"))
	}))
	defer server.Close()

	r := New(server.URL+"/", Options{APIKey: "secret"})
	data, err := r.Render(context.Background(), input())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if string(data) != "%PDF-1.7 rendered" {
		t.Fatalf("unexpected body %q", data)
	}
	if payload.TemplateID != "termination_letter" || payload.Fields["policy_number"] != "PN-1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.SignaturePNG != base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("signature must be base64 encoded")
	}
	if r.ContentType() != "application/pdf" {
		t.Fatalf("unexpected content type %q", r.ContentType())
	}
}

func TestRenderRetriesUnavailableService(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("pdf"))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
	r := New(server.URL, Options{ResilienceExecutor: exec})
	if _, err := r.Render(context.Background(), input()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestRenderIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown placeholder", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	r := New(server.URL, Options{})
	_, err := r.Render(context.Background(), input())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "unknown placeholder") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("client errors must not be temporary: %v", err)
	}
}

func TestRenderBadGatewayIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	r := New(server.URL, Options{})
	_, err := r.Render(context.Background(), input())
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestRenderRejectsEmptyDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if _, err := New(server.URL, Options{}).Render(context.Background(), input()); err == nil {
		t.Fatalf("expected error for empty document")
	}
}
