package audit

import (
	"context"
	"log/slog"
	"time"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/requestcontext"
)

// Entry is the write-side input to the audit log. The service fills in the
// event ID, timestamp, request context, and organization derivation.
type Entry struct {
	Type           EventType
	Action         string
	Actor          Actor
	Target         Target
	OrgID          id.OrgID // explicit override; normally derived
	ChangeData     map[string]any
	PreviousValues map[string]any
	NewValues      map[string]any
	Tags           []string
}

// Service is the single write path to the audit log. Every component records
// facts through it; nothing updates or deletes them afterwards.
type Service struct {
	store Store
	log   *slog.Logger
	inbox chan *Event
}

func NewService(store Store, log *slog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		inbox: make(chan *Event, 256),
	}
}

// Log persists one immutable event and returns it. The organization is derived
// from the actor, then the target, then the ambient request organization, in
// that priority order. Request metadata (request ID, IP, user agent) is
// captured from ctx exactly once.
func (s *Service) Log(ctx context.Context, entry Entry) (*Event, error) {
	if !entry.Type.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown audit event type %q", entry.Type)
	}
	if entry.Action == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "audit action must not be empty")
	}

	event := s.build(ctx, entry)
	if err := s.store.Append(ctx, event); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "append audit event", err)
	}
	return event, nil
}

// LogModelChange is a convenience for recording a field-level diff. changes
// maps field name to its [old, new] pair; the service splits the pairs into
// the previous/new value buckets.
func (s *Service) LogModelChange(ctx context.Context, entry Entry, changes map[string][2]any) (*Event, error) {
	previous := make(map[string]any, len(changes))
	next := make(map[string]any, len(changes))
	for field, pair := range changes {
		previous[field] = pair[0]
		next[field] = pair[1]
	}
	entry.PreviousValues = previous
	entry.NewValues = next
	return s.Log(ctx, entry)
}

// LogAsync builds the event immediately — request context and timestamp are
// captured from the caller's ctx, not the worker's — and enqueues it for
// background persistence. Use it from paths where the audit write must never
// add latency; ordering relative to Log calls is not guaranteed. Dropping is
// not an option: when the inbox is full, the write happens inline.
func (s *Service) LogAsync(ctx context.Context, entry Entry) {
	if !entry.Type.Valid() || entry.Action == "" {
		s.log.Error("invalid audit entry dropped", "type", entry.Type, "action", entry.Action)
		return
	}
	event := s.build(ctx, entry)
	select {
	case s.inbox <- event:
	default:
		if err := s.store.Append(ctx, event); err != nil {
			s.log.Error("audit write failed", "action", event.Action, "error", err)
		}
	}
}

// Run drains the async inbox until ctx is cancelled. The worker only appends:
// enqueued events are fully built. Failures are reported to the operational
// log and never propagate: a lost audit write must not take down the worker
// (the synchronous path is unaffected).
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-s.inbox:
			if err := s.store.Append(ctx, event); err != nil {
				s.log.Error("audit write failed", "action", event.Action, "error", err)
			}
		}
	}
}

// Query reads events, newest-first.
func (s *Service) Query(ctx context.Context, q Query) ([]*Event, error) {
	return s.store.List(ctx, q)
}

// Verify walks the organization's hash chain oldest-first and returns the ID
// of the first event whose link is broken, or nil when the chain is intact.
func (s *Service) Verify(ctx context.Context, orgID id.OrgID) (*id.EventID, error) {
	events, err := s.store.Chain(ctx, orgID)
	if err != nil {
		return nil, err
	}
	prev := ""
	for _, event := range events {
		digest := event.BodyDigest()
		want := ChainHash(prev, digest[:])
		if event.PrevHash != prev || event.Hash != want {
			broken := event.ID
			return &broken, nil
		}
		prev = event.Hash
	}
	return nil, nil
}

func (s *Service) build(ctx context.Context, entry Entry) *Event {
	userAgent := requestcontext.UserAgent(ctx)
	event := &Event{
		ID:             id.NewEventID(),
		Type:           entry.Type,
		Action:         entry.Action,
		Actor:          entry.Actor,
		Target:         entry.Target,
		OrgID:          deriveOrg(ctx, entry),
		ChangeData:     entry.ChangeData,
		PreviousValues: entry.PreviousValues,
		NewValues:      entry.NewValues,
		Tags:           entry.Tags,
		// UTC at microsecond precision so the body digest survives a
		// round-trip through timestamptz columns.
		CreatedAt: requestcontext.Now(ctx).UTC().Truncate(time.Microsecond),
		RequestContext: RequestContext{
			RequestID: requestcontext.RequestID(ctx),
			IP:        requestcontext.ClientIP(ctx),
			UserAgent: userAgent,
			Device:    DeviceSummary(userAgent),
		},
	}
	// The per-part org hints exist only to feed derivation; the event's OrgID
	// is the single persisted organization so digests round-trip through any
	// store.
	event.Actor.OrgID = id.OrgID{}
	event.Target.OrgID = id.OrgID{}
	return event
}

// ActorFromContext builds the acting-user Actor from the request context set
// by the gateway headers. Handlers use it for every audited operation.
func ActorFromContext(ctx context.Context) Actor {
	return Actor{
		ID:    requestcontext.UserID(ctx),
		Type:  "user",
		OrgID: requestcontext.OrgID(ctx),
	}
}

// deriveOrg picks the event organization: explicit entry override, then the
// actor's org, then the target's, then the ambient request organization.
func deriveOrg(ctx context.Context, entry Entry) id.OrgID {
	if !entry.OrgID.IsNil() {
		return entry.OrgID
	}
	if !entry.Actor.OrgID.IsNil() {
		return entry.Actor.OrgID
	}
	if !entry.Target.OrgID.IsNil() {
		return entry.Target.OrgID
	}
	return requestcontext.OrgID(ctx)
}
