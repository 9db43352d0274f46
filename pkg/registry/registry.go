// pkg/registry/registry.go
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"outreach-engine/internal/models"
)

var ErrTemplateNotFound = errors.New("registry: template not found")

// LoadCatalog reads a YAML (.yaml, .yml) or JSON catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cat Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cat)
	default:
		err = json.Unmarshal(data, &cat)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return &cat, nil
}

// Validate checks every template and rejects duplicate IDs.
func (c *Catalog) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Templates))
	for i := range c.Templates {
		t := &c.Templates[i]
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[t.ID]; dup {
			errs = append(errs, fmt.Errorf("template %s: duplicate id", t.ID))
		}
		seen[t.ID] = struct{}{}
	}
	return errors.Join(errs...)
}

func (c *Catalog) Lookup(id string) (*models.Template, error) {
	for i := range c.Templates {
		if c.Templates[i].ID == id {
			t := c.Templates[i]
			return &t, nil
		}
	}
	return nil, ErrTemplateNotFound
}

// IDs lists the template IDs in name order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Templates))
	for _, t := range c.Templates {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

// Source serves templates from a loaded catalog. Each call returns a copy,
// so callers can treat it as a snapshot.
type Source struct {
	catalog *Catalog
}

func NewSource(c *Catalog) *Source {
	return &Source{catalog: c}
}

func (s *Source) GetTemplate(_ context.Context, id string) (*models.Template, error) {
	return s.catalog.Lookup(id)
}
