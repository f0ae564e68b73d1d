package memory

import (
	"context"
	"sync"

	"vellum/internal/audit"
	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"
)

// Store is the in-memory audit log. Appends link each event into the hash
// chain under the write lock; reads return copies so callers cannot reach the
// stored records.
type Store struct {
	mu       sync.RWMutex
	events   []*audit.Event
	lastHash map[id.OrgID]string
}

func NewStore() *Store {
	return &Store{lastHash: make(map[id.OrgID]string)}
}

func (s *Store) Append(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest := event.BodyDigest()
	prev := s.lastHash[event.OrgID]
	event.PrevHash = prev
	event.Hash = audit.ChainHash(prev, digest[:])
	s.lastHash[event.OrgID] = event.Hash

	stored := *event
	s.events = append(s.events, &stored)
	return nil
}

// Update always fails: the audit log is append-only.
func (s *Store) Update(_ context.Context, _ *audit.Event) error {
	return sentinel.ErrImmutable
}

// Delete always fails: the audit log is append-only.
func (s *Store) Delete(_ context.Context, _ id.EventID) error {
	return sentinel.ErrImmutable
}

func (s *Store) List(_ context.Context, q audit.Query) ([]*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.Event
	// Stored order is append order; walk backwards for newest-first.
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if !q.Matches(event) {
			continue
		}
		copied := *event
		out = append(out, &copied)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Chain(_ context.Context, orgID id.OrgID) ([]*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.Event
	for _, event := range s.events {
		if !orgID.IsNil() && event.OrgID != orgID {
			continue
		}
		copied := *event
		out = append(out, &copied)
	}
	return out, nil
}
