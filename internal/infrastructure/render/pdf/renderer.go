// Package pdf renders catalogue templates into PDF letters with gofpdf.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

const ContentType = "application/pdf"

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

type Options struct {
	FontFamily     string
	FontSize       float64
	TitleFontSize  float64
	Margin         float64
	SignatureWidth float64
	Author         string
}

func DefaultOptions() Options {
	return Options{
		FontFamily:     "Helvetica",
		FontSize:       11,
		TitleFontSize:  14,
		Margin:         20,
		SignatureWidth: 60,
		Author:         "termination-portal",
	}
}

type Renderer struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.FontFamily == "" {
		opts.FontFamily = def.FontFamily
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}
	if opts.TitleFontSize <= 0 {
		opts.TitleFontSize = def.TitleFontSize
	}
	if opts.Margin <= 0 {
		opts.Margin = def.Margin
	}
	if opts.SignatureWidth <= 0 {
		opts.SignatureWidth = def.SignatureWidth
	}
	return &Renderer{opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Renderer) ContentType() string { return ContentType }

func (r *Renderer) Render(ctx context.Context, in domain.RenderInput) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Template.Body) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "render pdf", fmt.Errorf("template %q has no body", in.Template.ID))
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(r.opts.Margin, r.opts.Margin, r.opts.Margin)
	doc.SetAutoPageBreak(true, r.opts.Margin)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	title := Fill(in.Template.Title, in.Fields)
	created := r.now()
	doc.SetTitle(title, true)
	doc.SetAuthor(r.opts.Author, true)
	doc.SetCreationDate(created)
	doc.SetModificationDate(created)

	doc.AddPage()
	if title != "" {
		doc.SetFont(r.opts.FontFamily, "B", r.opts.TitleFontSize)
		doc.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
		doc.Ln(4)
	}

	doc.SetFont(r.opts.FontFamily, "", r.opts.FontSize)
	lineHeight := r.opts.FontSize * 0.5
	doc.MultiCell(0, lineHeight, tr(Fill(in.Template.Body, in.Fields)), "", "L", false)

	if len(in.SignatureImage) > 0 {
		if err := r.placeSignature(doc, tr, in); err != nil {
			return nil, err
		}
	}

	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("render pdf %s: %w", in.Template.ID, err)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf %s: %w", in.Template.ID, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) placeSignature(doc *gofpdf.Fpdf, tr func(string) string, in domain.RenderInput) error {
	name := "signature-" + uuid.NewString()
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	info := doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(in.SignatureImage))
	if err := doc.Error(); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "place signature", err)
	}

	width := r.opts.SignatureWidth
	height := width * info.Height() / info.Width()
	_, pageHeight := doc.GetPageSize()
	if doc.GetY()+height+20 > pageHeight-r.opts.Margin {
		doc.AddPage()
	}

	doc.Ln(8)
	x, y := doc.GetX(), doc.GetY()
	doc.ImageOptions(name, x, y, width, height, false, opts, 0, "")
	doc.SetY(y + height + 2)
	doc.Line(x, doc.GetY(), x+width, doc.GetY())
	doc.Ln(2)

	caption := "Signed electronically"
	if in.SignedAt != nil {
		caption += " on " + in.SignedAt.UTC().Format("02.01.2006 15:04") + " UTC"
	}
	doc.SetFont(r.opts.FontFamily, "I", r.opts.FontSize-2)
	doc.CellFormat(0, 5, tr(caption), "", 1, "L", false, 0, "")
	return nil
}

// Fill replaces {{ name }} placeholders. Unknown names render empty.
func Fill(text string, fields map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		return fields[key]
	})
}

// Placeholders lists the field names a template body refers to.
func Placeholders(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
