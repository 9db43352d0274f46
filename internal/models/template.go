// internal/models/template.go
package models

import (
	"fmt"
	"strings"
	"time"

	"outreach-engine/internal/template"
)

// Template is a parameterized message pattern. The runner reads it as an
// immutable snapshot for the duration of a campaign.
type Template struct {
	ID             string       `json:"id" yaml:"id" db:"id"`
	Name           string       `json:"name,omitempty" yaml:"name,omitempty" db:"name"`
	Channel        Channel      `json:"channel" yaml:"channel" db:"channel"`
	Kind           TemplateKind `json:"kind" yaml:"kind" db:"kind"`
	SubjectPattern *string      `json:"subjectPattern,omitempty" yaml:"subject,omitempty" db:"subject_pattern"`
	BodyPattern    string       `json:"bodyPattern" yaml:"body" db:"body_pattern"`
	UpdatedAt      time.Time    `json:"updatedAt,omitempty" yaml:"-" db:"updated_at"`
}

// DeclaredVariables re-derives the variable names referenced by the subject
// and body patterns, subject first.
func (t *Template) DeclaredVariables() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	if t.SubjectPattern != nil {
		add(template.Variables(*t.SubjectPattern))
	}
	add(template.Variables(t.BodyPattern))
	return out
}

func (t *Template) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("template id is required")
	}
	if !t.Channel.Valid() {
		return fmt.Errorf("template %s: unknown channel %q", t.ID, t.Channel)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("template %s: unknown kind %q", t.ID, t.Kind)
	}
	if strings.TrimSpace(t.BodyPattern) == "" {
		return fmt.Errorf("template %s: body pattern must not be empty", t.ID)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
