package audit_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vellum/internal/audit"
	"vellum/internal/audit/store/memory"
	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/requestcontext"
)

type AuditServiceSuite struct {
	suite.Suite
	store   *memory.Store
	service *audit.Service
	ctx     context.Context
}

func (s *AuditServiceSuite) SetupTest() {
	s.store = memory.NewStore()
	s.service = audit.NewService(s.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.ctx = context.Background()
}

func TestAuditServiceSuite(t *testing.T) {
	suite.Run(t, new(AuditServiceSuite))
}

func (s *AuditServiceSuite) TestLogValidation() {
	s.Run("rejects unknown type", func() {
		_, err := s.service.Log(s.ctx, audit.Entry{Type: "bogus", Action: "x"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects empty action", func() {
		_, err := s.service.Log(s.ctx, audit.Entry{Type: audit.TypeContent})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// TestOrganizationDerivation verifies the priority order: explicit entry
// organization, then actor, then target, then the ambient request org.
func (s *AuditServiceSuite) TestOrganizationDerivation() {
	explicit := id.OrgID(uuid.New())
	actorOrg := id.OrgID(uuid.New())
	targetOrg := id.OrgID(uuid.New())
	ambientOrg := id.OrgID(uuid.New())
	ctx := requestcontext.WithOrgID(s.ctx, ambientOrg)

	s.Run("explicit wins", func() {
		event, err := s.service.Log(ctx, audit.Entry{
			Type:   audit.TypeContent,
			Action: "document.generated",
			OrgID:  explicit,
			Actor:  audit.Actor{ID: id.NewUserID(), Type: "user", OrgID: actorOrg},
		})
		s.Require().NoError(err)
		s.Equal(explicit, event.OrgID)
	})

	s.Run("actor beats target", func() {
		event, err := s.service.Log(ctx, audit.Entry{
			Type:   audit.TypeContent,
			Action: "document.generated",
			Actor:  audit.Actor{ID: id.NewUserID(), Type: "user", OrgID: actorOrg},
			Target: audit.Target{ID: "doc-1", Type: "document", OrgID: targetOrg},
		})
		s.Require().NoError(err)
		s.Equal(actorOrg, event.OrgID)
	})

	s.Run("target beats ambient", func() {
		event, err := s.service.Log(ctx, audit.Entry{
			Type:   audit.TypeContent,
			Action: "document.generated",
			Target: audit.Target{ID: "doc-1", Type: "document", OrgID: targetOrg},
		})
		s.Require().NoError(err)
		s.Equal(targetOrg, event.OrgID)
	})

	s.Run("ambient as last resort", func() {
		event, err := s.service.Log(ctx, audit.Entry{
			Type:   audit.TypeContent,
			Action: "document.generated",
		})
		s.Require().NoError(err)
		s.Equal(ambientOrg, event.OrgID)
	})

	s.Run("org hints are not persisted on actor or target", func() {
		event, err := s.service.Log(ctx, audit.Entry{
			Type:   audit.TypeContent,
			Action: "document.generated",
			Actor:  audit.Actor{ID: id.NewUserID(), Type: "user", OrgID: actorOrg},
			Target: audit.Target{ID: "doc-1", Type: "document", OrgID: targetOrg},
		})
		s.Require().NoError(err)
		s.True(event.Actor.OrgID.IsNil())
		s.True(event.Target.OrgID.IsNil())
	})
}

// TestLogAsyncCapturesRequestContext verifies the async path snapshots the
// caller's request metadata and clock at enqueue time: the worker persists
// what the originating request carried, not its own background context.
func (s *AuditServiceSuite) TestLogAsyncCapturesRequestContext() {
	orgID := id.OrgID(uuid.New())
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(s.ctx, "req-123")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")
	ctx = requestcontext.WithTime(ctx, at)

	workerCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = s.service.Run(workerCtx) }()

	s.service.LogAsync(ctx, audit.Entry{
		Type:   audit.TypeContent,
		Action: "document.generated",
		OrgID:  orgID,
	})

	var events []*audit.Event
	s.Require().Eventually(func() bool {
		var err error
		events, err = s.service.Query(s.ctx, audit.Query{OrgID: orgID})
		return err == nil && len(events) == 1
	}, time.Second, 5*time.Millisecond)

	event := events[0]
	s.Equal("req-123", event.RequestContext.RequestID)
	s.Equal("10.0.0.1", event.RequestContext.IP)
	s.Equal("curl/8.0", event.RequestContext.UserAgent)
	s.Equal(at, event.CreatedAt)
}

func (s *AuditServiceSuite) TestLogModelChangeSplitsPairs() {
	event, err := s.service.LogModelChange(s.ctx, audit.Entry{
		Type:   audit.TypeContent,
		Action: "document.cancelled",
		OrgID:  id.OrgID(uuid.New()),
	}, map[string][2]any{
		"status": {"draft", "cancelled"},
	})
	s.Require().NoError(err)
	s.Equal("draft", event.PreviousValues["status"])
	s.Equal("cancelled", event.NewValues["status"])
}

func (s *AuditServiceSuite) TestVerifyIntactChain() {
	orgID := id.OrgID(uuid.New())
	for _, action := range []string{"document.generated", "document.signed", "document.completed"} {
		_, err := s.service.Log(s.ctx, audit.Entry{
			Type:   audit.TypeContent,
			Action: action,
			OrgID:  orgID,
		})
		s.Require().NoError(err)
	}

	broken, err := s.service.Verify(s.ctx, orgID)
	s.Require().NoError(err)
	s.Nil(broken)
}

// tamperStore wraps the in-memory store but lets the test mutate the chain it
// hands back, simulating an in-place edit of a persisted event.
type tamperStore struct {
	*memory.Store
	tamper func(events []*audit.Event)
}

func (t *tamperStore) Chain(ctx context.Context, orgID id.OrgID) ([]*audit.Event, error) {
	events, err := t.Store.Chain(ctx, orgID)
	if err != nil {
		return nil, err
	}
	t.tamper(events)
	return events, nil
}

func (s *AuditServiceSuite) TestVerifyDetectsTampering() {
	orgID := id.OrgID(uuid.New())
	store := &tamperStore{Store: s.store}
	service := audit.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var tampered id.EventID
	for _, action := range []string{"document.generated", "document.signed", "document.completed"} {
		event, err := service.Log(s.ctx, audit.Entry{
			Type:   audit.TypeContent,
			Action: action,
			OrgID:  orgID,
		})
		s.Require().NoError(err)
		if action == "document.signed" {
			tampered = event.ID
		}
	}
	store.tamper = func(events []*audit.Event) {
		for _, event := range events {
			if event.ID == tampered {
				event.Action = "document.cancelled"
			}
		}
	}

	broken, err := service.Verify(s.ctx, orgID)
	s.Require().NoError(err)
	s.Require().NotNil(broken)
	s.Equal(tampered, *broken)
}
