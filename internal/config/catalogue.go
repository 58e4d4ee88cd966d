package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

// Catalogue is the parsed document and template configuration.
type Catalogue struct {
	Documents *domain.Catalogue
	Templates *TemplateSet
}

type catalogueFile struct {
	Documents []domain.DocumentKind `yaml:"documents"`
	Templates []domain.Template     `yaml:"templates"`
}

// LoadCatalogue reads the YAML catalogue at path, or the embedded default
// when path is empty.
func LoadCatalogue(path string) (*Catalogue, error) {
	data := defaultCatalogue
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalogue %s: %w", path, err)
		}
		data = raw
	}
	return ParseCatalogue(data)
}

func ParseCatalogue(data []byte) (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	docs, err := domain.NewCatalogue(file.Documents)
	if err != nil {
		return nil, err
	}
	templates, err := NewTemplateSet(file.Templates)
	if err != nil {
		return nil, err
	}
	return &Catalogue{Documents: docs, Templates: templates}, nil
}

// TemplateSet is an ordered, read-only template catalogue.
type TemplateSet struct {
	items []domain.Template
	index map[string]int
}

func NewTemplateSet(items []domain.Template) (*TemplateSet, error) {
	set := &TemplateSet{index: make(map[string]int, len(items))}
	for _, t := range items {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build templates", fmt.Errorf("template id is empty"))
		}
		if strings.TrimSpace(t.Body) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build templates", fmt.Errorf("template %q has no body", t.ID))
		}
		if _, dup := set.index[t.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "build templates", fmt.Errorf("duplicate template %q", t.ID))
		}
		set.index[t.ID] = len(set.items)
		set.items = append(set.items, t)
	}
	if len(set.items) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build templates", fmt.Errorf("no templates configured"))
	}
	return set, nil
}

func (s *TemplateSet) Template(id string) (domain.Template, error) {
	idx, ok := s.index[strings.TrimSpace(id)]
	if !ok {
		return domain.Template{}, domain.WrapError(domain.ErrTemplateNotFound, "lookup template", fmt.Errorf("id=%s", id))
	}
	return s.items[idx], nil
}

func (s *TemplateSet) Templates() []domain.Template {
	out := make([]domain.Template, len(s.items))
	copy(out, s.items)
	return out
}
