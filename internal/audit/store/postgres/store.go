package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vellum/internal/audit"
	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"
	txcontext "vellum/pkg/platform/tx"
)

// Store persists audit events in the audit_events table. The table is
// insert-only: migrations install a trigger that raises on UPDATE or DELETE,
// and this store exposes no mutating statements. Appends serialize per
// organization with an advisory lock so the hash chain never forks.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// q routes reads through the transaction carried by the context, if any.
// Append always opens its own transaction: the advisory lock and the chain
// head read must share one.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer tx.Rollback()

	// One chain per organization; serialize appends within it.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, event.OrgID.String()); err != nil {
		return fmt.Errorf("acquire audit chain lock: %w", err)
	}

	var prev sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT hash FROM audit_events WHERE org_id = $1 ORDER BY seq DESC LIMIT 1`,
		uuid.UUID(event.OrgID)).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read audit chain head: %w", err)
	}

	digest := event.BodyDigest()
	event.PrevHash = prev.String
	event.Hash = audit.ChainHash(prev.String, digest[:])

	changeData, err := json.Marshal(event.ChangeData)
	if err != nil {
		return fmt.Errorf("marshal change data: %w", err)
	}
	previousValues, err := json.Marshal(event.PreviousValues)
	if err != nil {
		return fmt.Errorf("marshal previous values: %w", err)
	}
	newValues, err := json.Marshal(event.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}
	tags, err := json.Marshal(event.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, event_type, action,
			actor_id, actor_type, actor_email, actor_name,
			target_id, target_type, org_id,
			change_data, previous_values, new_values,
			request_id, client_ip, user_agent, device,
			tags, created_at, prev_hash, hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		uuid.UUID(event.ID),
		string(event.Type),
		event.Action,
		nullableUUID(uuid.UUID(event.Actor.ID)),
		event.Actor.Type,
		event.Actor.Email,
		event.Actor.Name,
		event.Target.ID,
		event.Target.Type,
		uuid.UUID(event.OrgID),
		changeData,
		previousValues,
		newValues,
		event.RequestContext.RequestID,
		event.RequestContext.IP,
		event.RequestContext.UserAgent,
		event.RequestContext.Device,
		tags,
		event.CreatedAt,
		event.PrevHash,
		event.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return tx.Commit()
}

// Update always fails: the audit log is append-only.
func (s *Store) Update(_ context.Context, _ *audit.Event) error {
	return sentinel.ErrImmutable
}

// Delete always fails: the audit log is append-only.
func (s *Store) Delete(_ context.Context, _ id.EventID) error {
	return sentinel.ErrImmutable
}

func (s *Store) List(ctx context.Context, q audit.Query) ([]*audit.Event, error) {
	query, args := buildListQuery(q)
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) Chain(ctx context.Context, orgID id.OrgID) ([]*audit.Event, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		selectColumns+` FROM audit_events WHERE org_id = $1 ORDER BY seq ASC`,
		uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

const selectColumns = `
	SELECT id, event_type, action,
	       actor_id, actor_type, actor_email, actor_name,
	       target_id, target_type, org_id,
	       change_data, previous_values, new_values,
	       request_id, client_ip, user_agent, device,
	       tags, created_at, prev_hash, hash`

func buildListQuery(q audit.Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			placeholders[i] = arg(string(t))
		}
		conds = append(conds, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(q.Actions) > 0 {
		placeholders := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			placeholders[i] = arg(a)
		}
		conds = append(conds, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !q.ActorID.IsNil() {
		conds = append(conds, "actor_id = "+arg(uuid.UUID(q.ActorID)))
	}
	if q.TargetType != "" {
		conds = append(conds, "target_type = "+arg(q.TargetType))
	}
	if q.TargetID != "" {
		conds = append(conds, "target_id = "+arg(q.TargetID))
	}
	if !q.OrgID.IsNil() {
		conds = append(conds, "org_id = "+arg(uuid.UUID(q.OrgID)))
	}
	if q.Tag != "" {
		conds = append(conds, "tags @> "+arg(fmt.Sprintf(`["%s"]`, q.Tag)))
	}
	if !q.From.IsZero() {
		conds = append(conds, "created_at >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		conds = append(conds, "created_at <= "+arg(q.To))
	}

	query := selectColumns + " FROM audit_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	return query, args
}

func scanEvents(rows *sql.Rows) ([]*audit.Event, error) {
	var events []*audit.Event
	for rows.Next() {
		var (
			event          audit.Event
			eventID        uuid.UUID
			eventType      string
			actorID        *uuid.UUID
			orgID          uuid.UUID
			changeData     []byte
			previousValues []byte
			newValues      []byte
			tags           []byte
		)
		err := rows.Scan(
			&eventID, &eventType, &event.Action,
			&actorID, &event.Actor.Type, &event.Actor.Email, &event.Actor.Name,
			&event.Target.ID, &event.Target.Type, &orgID,
			&changeData, &previousValues, &newValues,
			&event.RequestContext.RequestID, &event.RequestContext.IP,
			&event.RequestContext.UserAgent, &event.RequestContext.Device,
			&tags, &event.CreatedAt, &event.PrevHash, &event.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = id.EventID(eventID)
		event.Type = audit.EventType(eventType)
		event.OrgID = id.OrgID(orgID)
		if actorID != nil {
			event.Actor.ID = id.UserID(*actorID)
		}
		if err := unmarshalInto(changeData, &event.ChangeData); err != nil {
			return nil, err
		}
		if err := unmarshalInto(previousValues, &event.PreviousValues); err != nil {
			return nil, err
		}
		if err := unmarshalInto(newValues, &event.NewValues); err != nil {
			return nil, err
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &event.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal audit tags: %w", err)
			}
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func unmarshalInto(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return nil
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}
