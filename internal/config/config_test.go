package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TOKEN_TTL_HOURS", "MAX_UPLOAD_BYTES", "PORTAL_RATE_LIMIT_RPS", "REMINDER_SCHEDULE", "STORE_DRIVER"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.TokenTTL().Hours() != 168 {
		t.Fatalf("expected default token ttl 168h, got %v", cfg.TokenTTL())
	}
	if cfg.MaxUploadBytes != 15<<20 {
		t.Fatalf("expected default upload limit 15MiB, got %d", cfg.MaxUploadBytes)
	}
	if cfg.PortalRateLimitRPS != 2 {
		t.Fatalf("expected default portal rate 2, got %v", cfg.PortalRateLimitRPS)
	}
	if cfg.ReminderSchedule != "0 9 * * *" {
		t.Fatalf("unexpected default reminder schedule %q", cfg.ReminderSchedule)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("unexpected default store driver %q", cfg.StoreDriver)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("TOKEN_TTL_HOURS", "24")
	t.Setenv("PORTAL_RATE_LIMIT_RPS", "0.5")
	t.Setenv("RESILIENCE_BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("COMPLETE_ON_CLIENT_SIGN", "true")
	t.Setenv("STORAGE_DRIVER", "S3")

	cfg := Load()
	if cfg.TokenTTLHours != 24 {
		t.Fatalf("expected ttl override, got %d", cfg.TokenTTLHours)
	}
	if cfg.PortalRateLimitRPS != 0.5 || cfg.BreakerFailureRatio != 0.25 {
		t.Fatalf("expected float overrides, got %v %v", cfg.PortalRateLimitRPS, cfg.BreakerFailureRatio)
	}
	if !cfg.CompleteOnClientSign {
		t.Fatalf("expected complete on sign")
	}
	if cfg.StorageDriver != "s3" {
		t.Fatalf("expected normalized storage driver, got %q", cfg.StorageDriver)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("RENDER_CONCURRENCY", "many")
	t.Setenv("RESILIENCE_RETRY_MULTIPLIER", "fast")

	cfg := Load()
	if cfg.RenderConcurrency != 4 || cfg.RetryMultiplier != 2 {
		t.Fatalf("expected fallbacks, got %d %v", cfg.RenderConcurrency, cfg.RetryMultiplier)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.StoreDriver = "memory"
	cfg.StorageDriver = "local"
	cfg.MailDriver = "log"
	cfg.RenderDriver = "pdf"
	cfg.JWTSecret = strings.Repeat("k", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg.StorageDriver = "s3"
	cfg.S3Bucket = ""
	cfg.MailDriver = "smtp"
	cfg.JWTSecret = "short"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"S3_BUCKET", "MAIL_DRIVER", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestLoadCatalogueDefault(t *testing.T) {
	cat, err := LoadCatalogue("")
	if err != nil {
		t.Fatalf("LoadCatalogue() error = %v", err)
	}
	required := cat.Documents.Required()
	if len(required) != 3 || required[0] != "identity_front" || required[2] != "contract" {
		t.Fatalf("unexpected required types %v", required)
	}
	letter, err := cat.Templates.Template("termination_letter")
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}
	if !strings.Contains(letter.Body, "{{ policy_number }}") {
		t.Fatalf("expected placeholder in default letter")
	}
	if _, err := cat.Templates.Template("missing"); !domain.IsKind(err, domain.ErrTemplateNotFound) {
		t.Fatalf("expected template not found, got %v", err)
	}
}

func TestLoadCatalogueFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue.yaml")
	content := `
documents:
  - type: passport
    required: true
templates:
  - id: short
    title: Short
    body: "Case {{ case_number }}"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	cat, err := LoadCatalogue(path)
	if err != nil {
		t.Fatalf("LoadCatalogue() error = %v", err)
	}
	kind, ok := cat.Documents.Lookup("passport")
	if !ok || kind.Label != "passport" {
		t.Fatalf("expected passport with default label, got %+v", kind)
	}
	if len(cat.Templates.Templates()) != 1 {
		t.Fatalf("expected one template")
	}
}

func TestParseCatalogueRejectsInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"no required":  "documents:\n  - type: other\ntemplates:\n  - id: a\n    body: x\n",
		"dup template": "documents:\n  - type: a\n    required: true\ntemplates:\n  - id: t\n    body: x\n  - id: t\n    body: y\n",
		"no templates": "documents:\n  - type: a\n    required: true\n",
		"empty body":   "documents:\n  - type: a\n    required: true\ntemplates:\n  - id: t\n",
		"broken yaml":  "documents: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCatalogue([]byte(content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
