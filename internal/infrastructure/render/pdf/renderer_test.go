package pdf

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	readpdf "github.com/ledongthuc/pdf"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 40))
	for x := 10; x < 110; x++ {
		img.Set(x, 20, color.RGBA{A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func pageText(t *testing.T, data []byte) string {
	t.Helper()
	r, err := readpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read rendered pdf: %v", err)
	}
	var out strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		text, err := r.Page(i).GetPlainText(nil)
		if err != nil {
			t.Fatalf("extract page %d: %v", i, err)
		}
		out.WriteString(text)
	}
	return out.String()
}

func letter() domain.Template {
	return domain.Template{
		ID:    "termination_letter",
		Title: "Termination {{ policy_number }}",
		Body:  "Policy {{policy_number}} with {{ insurance_company }}\nCase {{ case_number }}\nMissing {{ unknown }}end",
	}
}

func TestRenderFillsPlaceholders(t *testing.T) {
	r := New(Options{})
	data, err := r.Render(context.Background(), domain.RenderInput{
		Template: letter(),
		Fields: map[string]string{
			"policy_number":     "PN-4711",
			"insurance_company": "Acme",
			"case_number":       "TC-01",
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("expected pdf header")
	}
	text := pageText(t, data)
	for _, want := range []string{"PN-4711", "Acme", "TC-01"} {
		if !strings.Contains(text, want) {
			t.Fatalf("rendered text missing %q: %q", want, text)
		}
	}
	if strings.Contains(text, "{{") {
		t.Fatalf("placeholders left in output: %q", text)
	}
	if r.ContentType() != "application/pdf" {
		t.Fatalf("unexpected content type")
	}
}

func TestRenderWithSignatureAddsCaption(t *testing.T) {
	r := New(Options{})
	signedAt := time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)
	data, err := r.Render(context.Background(), domain.RenderInput{
		Template:       letter(),
		Fields:         map[string]string{"policy_number": "PN-4711"},
		SignatureImage: signaturePNG(t),
		SignedAt:       &signedAt,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(pageText(t, data), "01.10.2026") {
		t.Fatalf("expected signing date caption")
	}
}

func TestRenderRejectsBrokenSignatureAndEmptyBody(t *testing.T) {
	r := New(Options{})
	_, err := r.Render(context.Background(), domain.RenderInput{
		Template:       letter(),
		SignatureImage: []byte("not a png"),
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for broken image, got %v", err)
	}
	_, err = r.Render(context.Background(), domain.RenderInput{Template: domain.Template{ID: "empty"}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty body, got %v", err)
	}
}

func TestFillAndPlaceholders(t *testing.T) {
	body := "{{a}} and {{ b }} and {{a}}"
	if got := Fill(body, map[string]string{"a": "1", "b": "2"}); got != "1 and 2 and 1" {
		t.Fatalf("unexpected fill %q", got)
	}
	names := Placeholders(body)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected placeholders %v", names)
	}
}
