package domain

import (
	"fmt"
	"strings"
)

// DocumentKind is one entry of the intake catalogue.
type DocumentKind struct {
	Type     DocumentType `json:"type" yaml:"type"`
	Label    string       `json:"label" yaml:"label"`
	Required bool         `json:"required" yaml:"required"`
}

// Catalogue is the static set of document types a case accepts.
type Catalogue struct {
	kinds []DocumentKind
	index map[DocumentType]int
}

func NewCatalogue(kinds []DocumentKind) (*Catalogue, error) {
	c := &Catalogue{index: make(map[DocumentType]int, len(kinds))}
	for _, kind := range kinds {
		kind.Type = DocumentType(strings.TrimSpace(string(kind.Type)))
		if kind.Type == "" {
			return nil, WrapError(ErrInvalidInput, "build catalogue", fmt.Errorf("document type is empty"))
		}
		if _, dup := c.index[kind.Type]; dup {
			return nil, WrapError(ErrInvalidInput, "build catalogue", fmt.Errorf("duplicate document type %q", kind.Type))
		}
		if kind.Label == "" {
			kind.Label = string(kind.Type)
		}
		c.index[kind.Type] = len(c.kinds)
		c.kinds = append(c.kinds, kind)
	}
	if len(c.Required()) == 0 {
		return nil, WrapError(ErrInvalidInput, "build catalogue", fmt.Errorf("catalogue has no required document type"))
	}
	return c, nil
}

// DefaultCatalogueKinds is the built-in catalogue.
func DefaultCatalogueKinds() []DocumentKind {
	return []DocumentKind{
		{Type: "identity_front", Label: "Identity card (front)", Required: true},
		{Type: "identity_back", Label: "Identity card (back)", Required: true},
		{Type: "contract", Label: "Insurance contract", Required: true},
		{Type: "proof_of_address", Label: "Proof of address"},
		{Type: "termination_letter", Label: "Existing termination letter"},
		{Type: "other", Label: "Other"},
	}
}

func (c *Catalogue) Kinds() []DocumentKind {
	out := make([]DocumentKind, len(c.kinds))
	copy(out, c.kinds)
	return out
}

func (c *Catalogue) Required() []DocumentType {
	out := make([]DocumentType, 0, len(c.kinds))
	for _, kind := range c.kinds {
		if kind.Required {
			out = append(out, kind.Type)
		}
	}
	return out
}

func (c *Catalogue) Lookup(docType DocumentType) (DocumentKind, bool) {
	idx, ok := c.index[docType]
	if !ok {
		return DocumentKind{}, false
	}
	return c.kinds[idx], true
}

// MarkSuperseded flags required-type records that have a newer upload of the
// same type. Optional types may hold several records and are never flagged.
// Input order is preserved.
func (c *Catalogue) MarkSuperseded(docs []Document) []Document {
	latest := latestIndexByType(docs)
	out := make([]Document, len(docs))
	for i, doc := range docs {
		kind, ok := c.Lookup(doc.DocumentType)
		doc.Superseded = ok && kind.Required && latest[doc.DocumentType] != i
		out[i] = doc
	}
	return out
}

// Validate rejects document types outside the catalogue.
func (c *Catalogue) Validate(raw string) (DocumentType, error) {
	docType := DocumentType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := c.index[docType]; !ok {
		return "", WrapError(ErrInvalidInput, "validate document type", fmt.Errorf("unknown document type %q", raw))
	}
	return docType, nil
}

// Completeness is the structured intake check result.
type Completeness struct {
	Complete bool           `json:"complete"`
	Required []DocumentType `json:"required"`
	Missing  []DocumentType `json:"missing"`
	Present  []DocumentType `json:"present"`
}

// Evaluate recomputes completeness from the document records. For each
// required type only the most recent upload counts, and it must not be rejected.
func (c *Catalogue) Evaluate(docs []Document) Completeness {
	latest := LatestByType(docs)
	result := Completeness{
		Required: c.Required(),
		Missing:  []DocumentType{},
		Present:  []DocumentType{},
	}
	for _, kind := range c.kinds {
		doc, ok := latest[kind.Type]
		satisfied := ok && doc.Status != DocumentRejected
		if satisfied {
			result.Present = append(result.Present, kind.Type)
			continue
		}
		if kind.Required {
			result.Missing = append(result.Missing, kind.Type)
		}
	}
	result.Complete = len(result.Missing) == 0
	return result
}
