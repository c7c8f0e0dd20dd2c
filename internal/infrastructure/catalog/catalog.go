package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

type file struct {
	Extensions []string              `yaml:"extensions"`
	Types      []domain.DocumentType `yaml:"types"`
}

// Catalog lists supported document types and the upload extension allow-list.
type Catalog struct {
	types      []domain.DocumentType
	extensions []string
}

// Load reads the catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	raw := defaultCatalog
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		raw = content
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{}
	for _, ext := range f.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" && !slices.Contains(c.extensions, ext) {
			c.extensions = append(c.extensions, ext)
		}
	}
	if len(c.extensions) == 0 {
		return nil, errors.New("parse catalog: no extensions allowed")
	}

	seen := map[string]bool{}
	for _, t := range f.Types {
		t.Key = strings.ToLower(strings.TrimSpace(t.Key))
		if t.Key == "" {
			return nil, errors.New("parse catalog: document type without key")
		}
		if seen[t.Key] {
			return nil, fmt.Errorf("parse catalog: duplicate document type %q", t.Key)
		}
		seen[t.Key] = true
		c.types = append(c.types, t)
	}
	return c, nil
}

func (c *Catalog) Types() []domain.DocumentType {
	return slices.Clone(c.types)
}

func (c *Catalog) AllowedExtensions() []string {
	return slices.Clone(c.extensions)
}

func (c *Catalog) IsAllowedExtension(ext string) bool {
	return slices.Contains(c.extensions, strings.ToLower(strings.TrimPrefix(ext, ".")))
}
