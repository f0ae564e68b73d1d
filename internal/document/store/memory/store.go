// Package memory is the in-process document store used by tests and
// development wiring.
package memory

import (
	"context"
	"sync"

	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"

	"vellum/internal/document"
)

type Store struct {
	mu        sync.RWMutex
	documents map[id.DocumentID]*document.GeneratedDocument
}

func NewStore() *Store {
	return &Store{documents: make(map[id.DocumentID]*document.GeneratedDocument)}
}

func (s *Store) Create(_ context.Context, doc *document.GeneratedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[doc.ID]; exists {
		return sentinel.ErrConflict
	}
	s.documents[doc.ID] = clone(doc)
	return nil
}

func (s *Store) Get(_ context.Context, documentID id.DocumentID) (*document.GeneratedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(doc), nil
}

// Update applies the optimistic version check: the incoming document must
// carry the stored version. On success both copies advance one version.
func (s *Store) Update(_ context.Context, doc *document.GeneratedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.documents[doc.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != doc.Version {
		return sentinel.ErrVersionConflict
	}
	doc.Version++
	s.documents[doc.ID] = clone(doc)
	return nil
}

func (s *Store) ListByOrg(_ context.Context, orgID id.OrgID) ([]*document.GeneratedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*document.GeneratedDocument
	for _, doc := range s.documents {
		if doc.OrgID == orgID {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (s *Store) ListPendingForUser(_ context.Context, orgID id.OrgID, userID id.UserID) ([]*document.GeneratedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*document.GeneratedDocument
	for _, doc := range s.documents {
		if doc.OrgID != orgID || doc.Status != document.StatusPendingSignatures {
			continue
		}
		for _, entry := range doc.Signatures {
			if entry.UserID == userID && entry.State == document.SignaturePending {
				out = append(out, clone(doc))
				break
			}
		}
	}
	return out, nil
}

func clone(doc *document.GeneratedDocument) *document.GeneratedDocument {
	c := *doc
	c.Signatures = append([]document.SignatureEntry(nil), doc.Signatures...)
	if doc.ResolvedValues != nil {
		c.ResolvedValues = make(map[string]string, len(doc.ResolvedValues))
		for k, v := range doc.ResolvedValues {
			c.ResolvedValues[k] = v
		}
	}
	return &c
}
