// Package memory is the in-process template store used by tests and
// development wiring.
package memory

import (
	"context"
	"sync"

	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"

	"vellum/internal/template"
)

type Store struct {
	mu        sync.RWMutex
	templates map[id.TemplateID]*template.Template
}

func NewStore() *Store {
	return &Store{templates: make(map[id.TemplateID]*template.Template)}
}

func (s *Store) Create(_ context.Context, tpl *template.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[tpl.ID]; exists {
		return sentinel.ErrConflict
	}
	s.templates[tpl.ID] = clone(tpl)
	return nil
}

func (s *Store) Get(_ context.Context, templateID id.TemplateID) (*template.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(tpl), nil
}

func (s *Store) Update(_ context.Context, tpl *template.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[tpl.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.templates[tpl.ID] = clone(tpl)
	return nil
}

func (s *Store) ListByOrg(_ context.Context, orgID id.OrgID) ([]*template.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*template.Template
	for _, tpl := range s.templates {
		if tpl.OrgID == orgID {
			out = append(out, clone(tpl))
		}
	}
	return out, nil
}

func clone(tpl *template.Template) *template.Template {
	c := *tpl
	c.Variables = append([]string(nil), tpl.Variables...)
	c.Signatories = append([]template.Signatory(nil), tpl.Signatories...)
	if tpl.VariableMappings != nil {
		c.VariableMappings = make(map[string]string, len(tpl.VariableMappings))
		for k, v := range tpl.VariableMappings {
			c.VariableMappings[k] = v
		}
	}
	return &c
}
