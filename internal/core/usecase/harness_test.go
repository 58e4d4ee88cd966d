package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
	"github.com/kirillkom/termination-portal/internal/infrastructure/repository/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
	onSave  func()
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	if f.onSave != nil {
		f.onSave()
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[key] = raw
	f.mu.Unlock()
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

type mailerFake struct {
	mu          sync.Mutex
	invitations []ports.Invitation
	reminders   []ports.Invitation
	err         error
}

func (f *mailerFake) SendInvitation(_ context.Context, inv ports.Invitation) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invitations = append(f.invitations, inv)
	return fmt.Sprintf("msg-inv-%d", len(f.invitations)), nil
}

func (f *mailerFake) SendReminder(_ context.Context, inv ports.Invitation) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders = append(f.reminders, inv)
	return fmt.Sprintf("msg-rem-%d", len(f.reminders)), nil
}

// rendererFake encodes its input so tests can assert what was rendered.
type rendererFake struct {
	mu      sync.Mutex
	calls   []domain.RenderInput
	failFor map[string]error
}

func (f *rendererFake) Render(_ context.Context, in domain.RenderInput) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[in.Template.ID]; ok {
		return nil, err
	}
	f.calls = append(f.calls, in)
	return []byte(fmt.Sprintf("%s|%s|signed=%t", in.Template.ID, in.Fields["case_number"], in.SignatureImage != nil)), nil
}

func (f *rendererFake) ContentType() string { return "application/pdf" }

type templatesFake struct {
	items []domain.Template
}

func (f templatesFake) Template(id string) (domain.Template, error) {
	for _, tmpl := range f.items {
		if tmpl.ID == id {
			return tmpl, nil
		}
	}
	return domain.Template{}, domain.WrapError(domain.ErrTemplateNotFound, "get template", fmt.Errorf("id=%s", id))
}

func (f templatesFake) Templates() []domain.Template { return f.items }

type publisherFake struct {
	mu     sync.Mutex
	events []ports.LifecycleEvent
	err    error
}

func (f *publisherFake) Publish(_ context.Context, event ports.LifecycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *publisherFake) types() []domain.CaseEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CaseEventType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type inspectorFake struct{}

func (inspectorFake) Inspect(filename string, _ []byte) (string, error) {
	switch {
	case strings.HasSuffix(filename, ".pdf"):
		return "application/pdf", nil
	case strings.HasSuffix(filename, ".png"):
		return "image/png", nil
	case strings.HasSuffix(filename, ".jpg"):
		return "image/jpeg", nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "inspect upload", errors.New("unsupported file type"))
	}
}

var (
	agent = domain.Actor{ID: "agent-1", Role: domain.RoleAgent}
	admin = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

type harness struct {
	store      *memory.Store
	clock      *testClock
	storage    *storageFake
	mailer     *mailerFake
	renderer   *rendererFake
	publisher  *publisherFake
	tokens     *TokenService
	machine    *CaseMachine
	intake     *IntakeService
	signatures *SignatureService
	generation *GenerationService
	cases      *CaseService
	portal     *PortalService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalogue, err := domain.NewCatalogue(domain.DefaultCatalogueKinds())
	if err != nil {
		t.Fatalf("NewCatalogue() error = %v", err)
	}

	h := &harness{
		store:     memory.NewStore(),
		clock:     &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		storage:   newStorageFake(),
		mailer:    &mailerFake{},
		renderer:  &rendererFake{failFor: map[string]error{}},
		publisher: &publisherFake{},
	}
	h.store.SeedClient(domain.Client{
		ID:       "client-1",
		FullName: "Jürgen Weiß",
		Email:    "juergen@example.com",
		City:     "Köln",
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates := templatesFake{items: []domain.Template{
		{ID: "termination_letter", Title: "Kündigung", Body: "Policy {{ policy_number }}"},
		{ID: "cover_letter", Title: "Cover", Body: "Case {{ case_number }}"},
	}}

	h.machine = NewCaseMachine(h.publisher, nil, logger)
	h.tokens = NewTokenService(h.store, 48*time.Hour)
	h.intake = NewIntakeService(h.store, h.storage, inspectorFake{}, catalogue, 1<<10, nil)
	h.signatures = NewSignatureService(h.store, h.machine, nil)
	h.generation = NewGenerationService(h.store, h.storage, h.renderer, templates, nil, logger, 2)
	h.cases = NewCaseService(h.store, h.tokens, h.machine, h.mailer, catalogue, "https://portal.example.com/p/", logger)
	h.portal = NewPortalService(h.store, h.tokens, h.intake, h.signatures, h.machine, catalogue, false)

	h.machine.now = h.clock.Now
	h.tokens.now = h.clock.Now
	h.intake.now = h.clock.Now
	h.signatures.now = h.clock.Now
	h.generation.now = h.clock.Now
	h.cases.now = h.clock.Now
	return h
}

func (h *harness) createCase(t *testing.T) *domain.Case {
	t.Helper()
	c, err := h.cases.Create(context.Background(), agent, ports.CreateCaseRequest{
		ClientID: "client-1",
		Policy: domain.PolicyFields{
			InsuranceCompany: "Allianz",
			PolicyNumber:     "POL-123",
			PolicyType:       "household",
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return c
}

// invitedCase returns a case in email_sent together with its portal token.
func (h *harness) invitedCase(t *testing.T) (*domain.Case, string) {
	t.Helper()
	c := h.createCase(t)
	res, err := h.cases.SendInvitation(context.Background(), agent, c.ID)
	if err != nil {
		t.Fatalf("SendInvitation() error = %v", err)
	}
	token := res.PortalURL[strings.LastIndex(res.PortalURL, "/")+1:]
	return c, token
}

func (h *harness) uploadRequired(t *testing.T, token string) {
	t.Helper()
	for _, docType := range []string{"identity_front", "identity_back", "contract"} {
		h.clock.Advance(time.Second)
		if _, err := h.portal.Upload(context.Background(), token, ports.UploadRequest{
			DocumentType: docType,
			Filename:     docType + ".pdf",
			Body:         strings.NewReader("%PDF-1.4 " + docType),
		}); err != nil {
			t.Fatalf("Upload(%s) error = %v", docType, err)
		}
	}
}

// finalizedCase returns a case in documents_uploaded together with its token.
func (h *harness) finalizedCase(t *testing.T) (*domain.Case, string) {
	t.Helper()
	c, token := h.invitedCase(t)
	h.uploadRequired(t, token)
	if _, err := h.portal.Finalize(context.Background(), token); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return c, token
}

func (h *harness) caseStatus(t *testing.T, caseID string) domain.CaseStatus {
	t.Helper()
	c, err := h.store.Cases().GetByID(context.Background(), caseID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	return c.Status
}

func signaturePNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 40, 12))
	for x := 0; x < 40; x++ {
		img.SetGray(x, 6, color.Gray{Y: shade})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
