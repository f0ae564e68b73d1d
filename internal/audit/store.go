package audit

import (
	"context"
	"time"

	id "vellum/pkg/domain"
)

// Query filters the audit log. Zero fields are unconstrained. Results are
// always ordered newest-first.
type Query struct {
	Types      []EventType
	Actions    []string
	ActorID    id.UserID
	TargetType string
	TargetID   string
	OrgID      id.OrgID
	Tag        string
	From       time.Time
	To         time.Time
	Limit      int
}

// Matches reports whether the event satisfies every set filter.
func (q Query) Matches(e *Event) bool {
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Actions) > 0 {
		found := false
		for _, a := range q.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.ActorID.IsNil() && e.Actor.ID != q.ActorID {
		return false
	}
	if q.TargetType != "" && e.Target.Type != q.TargetType {
		return false
	}
	if q.TargetID != "" && e.Target.ID != q.TargetID {
		return false
	}
	if !q.OrgID.IsNil() && e.OrgID != q.OrgID {
		return false
	}
	if q.Tag != "" && !e.HasTag(q.Tag) {
		return false
	}
	if !q.From.IsZero() && e.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.CreatedAt.After(q.To) {
		return false
	}
	return true
}

// Store persists audit events. The only write path is Append. Update and
// Delete exist on the interface so the append-only contract is explicit and
// testable: every implementation must reject them with sentinel.ErrImmutable.
type Store interface {
	Append(ctx context.Context, event *Event) error
	List(ctx context.Context, q Query) ([]*Event, error)

	// Update and Delete always fail. The audit log is append-only.
	Update(ctx context.Context, event *Event) error
	Delete(ctx context.Context, eventID id.EventID) error

	// Chain walks the log oldest-first for hash-chain verification.
	Chain(ctx context.Context, orgID id.OrgID) ([]*Event, error)
}
