package domain

import (
	"io"
	"strings"
	"time"
	"unicode"
)

// Template is a renderable letter definition from the template catalogue.
type Template struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
}

// GeneratedDocument is one rendition of a template. Every render appends a new
// record; existing records are never changed.
type GeneratedDocument struct {
	ID               string     `json:"id"`
	CaseID           string     `json:"case_id"`
	TemplateID       string     `json:"template_id"`
	BlobRef          string     `json:"blob_ref"`
	ContentType      string     `json:"content_type"`
	SizeBytes        int64      `json:"size_bytes"`
	SHA256           string     `json:"sha256"`
	IsSigned         bool       `json:"is_signed"`
	SignedAt         *time.Time `json:"signed_at,omitempty"`
	SignatureID      string     `json:"signature_id,omitempty"`
	SourceDocumentID string     `json:"source_document_id,omitempty"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
}

// RenderInput is what the renderer receives for one document.
type RenderInput struct {
	Template       Template
	Fields         map[string]string
	SignatureImage []byte
	SignedAt       *time.Time
}

// ApplyResult reports the outcome for one document of a batch re-sign.
type ApplyResult struct {
	DocumentID string             `json:"document_id"`
	OK         bool               `json:"ok"`
	Generated  *GeneratedDocument `json:"generated,omitempty"`
	Error      string             `json:"error,omitempty"`
	Kind       string             `json:"kind,omitempty"`
}

type ExportFile struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// LatestUnsignedPerTemplate picks, for every template, the newest rendition
// if that rendition is still unsigned.
func LatestUnsignedPerTemplate(docs []GeneratedDocument) []GeneratedDocument {
	latest := make(map[string]GeneratedDocument)
	order := make([]string, 0)
	for _, doc := range docs {
		prev, ok := latest[doc.TemplateID]
		if !ok {
			order = append(order, doc.TemplateID)
		}
		if !ok || !doc.CreatedAt.Before(prev.CreatedAt) {
			latest[doc.TemplateID] = doc
		}
	}
	out := make([]GeneratedDocument, 0, len(order))
	for _, templateID := range order {
		if doc := latest[templateID]; !doc.IsSigned {
			out = append(out, doc)
		}
	}
	return out
}

// RenderFields collects the placeholder values for templates.
func RenderFields(c *Case, client *Client, now time.Time) map[string]string {
	fields := map[string]string{
		"case_number":            c.CaseNumber,
		"insurance_company":      c.InsuranceCompany,
		"policy_number":          c.PolicyNumber,
		"policy_type":            c.PolicyType,
		"reason_for_termination": c.ReasonForTermination,
		"termination_date":       "",
		"today":                  now.Format("02.01.2006"),
	}
	if c.TerminationDate != nil {
		fields["termination_date"] = c.TerminationDate.Format("02.01.2006")
	}
	if client != nil {
		fields["client_name"] = client.FullName
		fields["client_email"] = client.Email
		fields["client_street"] = client.Street
		fields["client_postal_code"] = client.PostalCode
		fields["client_city"] = client.City
	}
	return fields
}

var transliterations = map[rune]string{
	'ä': "ae", 'ö': "oe", 'ü': "ue", 'Ä': "Ae", 'Ö': "Oe", 'Ü': "Ue", 'ß': "ss",
}

// ExportFilename derives the download name from case number and client name.
func ExportFilename(caseNumber, clientName, ext string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(clientName) {
		if repl, ok := transliterations[r]; ok {
			b.WriteString(repl)
			continue
		}
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(collapseUnderscores(b.String()), "_")
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "pdf"
	}
	if name == "" {
		return caseNumber + "." + ext
	}
	return caseNumber + "_" + name + "." + ext
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range s {
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
