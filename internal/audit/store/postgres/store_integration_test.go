//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vellum/internal/audit"
	"vellum/internal/audit/store/postgres"
	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"
	"vellum/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	orgID    id.OrgID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.orgID = id.OrgID(uuid.New())
	err := s.postgres.TruncateTables(context.Background(), "audit_events")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newEvent(action string) *audit.Event {
	return &audit.Event{
		ID:     id.NewEventID(),
		Type:   audit.TypeContent,
		Action: action,
		Actor:  audit.Actor{ID: id.NewUserID(), Type: "user", Name: "Ana Pérez"},
		Target: audit.Target{ID: uuid.NewString(), Type: "document"},
		OrgID:  s.orgID,
		Tags:   []string{"contract"},
		RequestContext: audit.RequestContext{
			RequestID: uuid.NewString(),
			IP:        "10.0.0.1",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestAppendLinksChain() {
	ctx := context.Background()

	first := s.newEvent("document.generated")
	s.Require().NoError(s.store.Append(ctx, first))
	s.Empty(first.PrevHash)
	s.NotEmpty(first.Hash)

	second := s.newEvent("document.signed")
	s.Require().NoError(s.store.Append(ctx, second))
	s.Equal(first.Hash, second.PrevHash)

	chain, err := s.store.Chain(ctx, s.orgID)
	s.Require().NoError(err)
	s.Require().Len(chain, 2)
	s.Equal(first.ID, chain[0].ID)
	s.Equal(second.ID, chain[1].ID)
	s.Equal(first.Hash, chain[1].PrevHash)
}

func (s *PostgresStoreSuite) TestChainsArePerOrganization() {
	ctx := context.Background()

	mine := s.newEvent("document.generated")
	s.Require().NoError(s.store.Append(ctx, mine))

	other := s.newEvent("document.generated")
	other.OrgID = id.OrgID(uuid.New())
	s.Require().NoError(s.store.Append(ctx, other))

	// A foreign organization's event never becomes this chain's head.
	s.Empty(other.PrevHash)

	chain, err := s.store.Chain(ctx, s.orgID)
	s.Require().NoError(err)
	s.Require().Len(chain, 1)
	s.Equal(mine.ID, chain[0].ID)
}

func (s *PostgresStoreSuite) TestMutationIsRejected() {
	ctx := context.Background()

	event := s.newEvent("document.generated")
	s.Require().NoError(s.store.Append(ctx, event))

	s.Run("store refuses updates", func() {
		s.Require().ErrorIs(s.store.Update(ctx, event), sentinel.ErrImmutable)
	})

	s.Run("store refuses deletes", func() {
		s.Require().ErrorIs(s.store.Delete(ctx, event.ID), sentinel.ErrImmutable)
	})

	s.Run("database trigger blocks direct UPDATE", func() {
		_, err := s.postgres.DB.ExecContext(ctx,
			`UPDATE audit_events SET action = 'tampered' WHERE id = $1`, uuid.UUID(event.ID))
		s.Require().Error(err)
		s.Contains(err.Error(), "append-only")
	})

	s.Run("database trigger blocks direct DELETE", func() {
		_, err := s.postgres.DB.ExecContext(ctx,
			`DELETE FROM audit_events WHERE id = $1`, uuid.UUID(event.ID))
		s.Require().Error(err)
		s.Contains(err.Error(), "append-only")
	})
}

func (s *PostgresStoreSuite) TestListFilters() {
	ctx := context.Background()

	generated := s.newEvent("document.generated")
	generated.CreatedAt = generated.CreatedAt.Add(-2 * time.Hour)
	s.Require().NoError(s.store.Append(ctx, generated))

	signed := s.newEvent("document.signed")
	signed.Tags = []string{"contract", "signed"}
	s.Require().NoError(s.store.Append(ctx, signed))

	s.Run("newest first by default", func() {
		events, err := s.store.List(ctx, audit.Query{OrgID: s.orgID})
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		s.Equal(signed.ID, events[0].ID)
	})

	s.Run("filter by action", func() {
		events, err := s.store.List(ctx, audit.Query{OrgID: s.orgID, Actions: []string{"document.signed"}})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(signed.ID, events[0].ID)
	})

	s.Run("filter by tag", func() {
		events, err := s.store.List(ctx, audit.Query{OrgID: s.orgID, Tag: "signed"})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(signed.ID, events[0].ID)
	})

	s.Run("filter by actor", func() {
		events, err := s.store.List(ctx, audit.Query{OrgID: s.orgID, ActorID: generated.Actor.ID})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(generated.ID, events[0].ID)
	})

	s.Run("time range", func() {
		events, err := s.store.List(ctx, audit.Query{OrgID: s.orgID, From: signed.CreatedAt.Add(-time.Minute)})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(signed.ID, events[0].ID)
	})

	s.Run("limit", func() {
		events, err := s.store.List(ctx, audit.Query{OrgID: s.orgID, Limit: 1})
		s.Require().NoError(err)
		s.Len(events, 1)
	})
}

func (s *PostgresStoreSuite) TestRoundTripPreservesPayloads() {
	ctx := context.Background()

	event := s.newEvent("template.updated")
	event.ChangeData = map[string]any{"field": "name"}
	event.PreviousValues = map[string]any{"name": "old"}
	event.NewValues = map[string]any{"name": "new"}
	s.Require().NoError(s.store.Append(ctx, event))

	events, err := s.store.List(ctx, audit.Query{OrgID: s.orgID})
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	got := events[0]
	s.Equal(event.Action, got.Action)
	s.Equal(event.Actor.ID, got.Actor.ID)
	s.Equal(map[string]any{"name": "old"}, got.PreviousValues)
	s.Equal(map[string]any{"name": "new"}, got.NewValues)
	s.Equal(event.Tags, got.Tags)
	s.Equal(event.Hash, got.Hash)
}
