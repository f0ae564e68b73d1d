// Package postgres persists workflow instances and tasks. The definition
// snapshot, state history, and escalation history travel as jsonb.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"
	txcontext "vellum/pkg/platform/tx"

	"vellum/internal/workflow"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// fromContext returns the transaction carried by the context, if any, so an
// instance update and its task writes can commit together.
func fromContext(ctx context.Context, db *sql.DB) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

type InstanceStore struct {
	db *sql.DB
}

func NewInstanceStore(db *sql.DB) *InstanceStore {
	return &InstanceStore{db: db}
}

func (s *InstanceStore) q(ctx context.Context) querier { return fromContext(ctx, s.db) }

const instanceColumns = `
	SELECT id, org_id, definition, status, current_state, state_history,
	       subject_type, subject_id, created_by,
	       created_at, updated_at, completed_at, cancelled_at, cancel_reason`

func (s *InstanceStore) Create(ctx context.Context, instance *workflow.Instance) error {
	definition, history, err := marshalInstance(instance)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO workflow_instances (
			id, org_id, definition, status, current_state, state_history,
			subject_type, subject_id, created_by,
			created_at, updated_at, completed_at, cancelled_at, cancel_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		uuid.UUID(instance.ID),
		uuid.UUID(instance.OrgID),
		definition,
		string(instance.Status),
		instance.CurrentState,
		history,
		instance.SubjectType,
		instance.SubjectID,
		uuid.UUID(instance.CreatedBy),
		instance.CreatedAt,
		instance.UpdatedAt,
		instance.CompletedAt,
		instance.CancelledAt,
		instance.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	return nil
}

func (s *InstanceStore) Get(ctx context.Context, instanceID id.InstanceID) (*workflow.Instance, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		instanceColumns+` FROM workflow_instances WHERE id = $1`, uuid.UUID(instanceID))
	instance, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	return instance, err
}

func (s *InstanceStore) Update(ctx context.Context, instance *workflow.Instance) error {
	_, history, err := marshalInstance(instance)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE workflow_instances
		SET status = $1, current_state = $2, state_history = $3,
		    updated_at = $4, completed_at = $5, cancelled_at = $6, cancel_reason = $7
		WHERE id = $8`,
		string(instance.Status),
		instance.CurrentState,
		history,
		instance.UpdatedAt,
		instance.CompletedAt,
		instance.CancelledAt,
		instance.CancelReason,
		uuid.UUID(instance.ID),
	)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *InstanceStore) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*workflow.Instance, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		instanceColumns+` FROM workflow_instances WHERE org_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("query workflow instances: %w", err)
	}
	defer rows.Close()

	var instances []*workflow.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow instance: %w", err)
		}
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow instances: %w", err)
	}
	return instances, nil
}

func marshalInstance(instance *workflow.Instance) (definition, history []byte, err error) {
	definition, err = json.Marshal(instance.Definition)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal workflow definition: %w", err)
	}
	history, err = json.Marshal(instance.StateHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal state history: %w", err)
	}
	return definition, history, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*workflow.Instance, error) {
	var (
		instance   workflow.Instance
		instanceID uuid.UUID
		orgID      uuid.UUID
		definition []byte
		status     string
		history    []byte
		createdBy  uuid.UUID
	)
	err := row.Scan(
		&instanceID, &orgID, &definition, &status, &instance.CurrentState, &history,
		&instance.SubjectType, &instance.SubjectID, &createdBy,
		&instance.CreatedAt, &instance.UpdatedAt, &instance.CompletedAt,
		&instance.CancelledAt, &instance.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	instance.ID = id.InstanceID(instanceID)
	instance.OrgID = id.OrgID(orgID)
	instance.Status = workflow.InstanceStatus(status)
	instance.CreatedBy = id.UserID(createdBy)
	if err := json.Unmarshal(definition, &instance.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal workflow definition: %w", err)
	}
	if len(history) > 0 && string(history) != "null" {
		if err := json.Unmarshal(history, &instance.StateHistory); err != nil {
			return nil, fmt.Errorf("unmarshal state history: %w", err)
		}
	}
	return &instance, nil
}

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func (s *TaskStore) q(ctx context.Context) querier { return fromContext(ctx, s.db) }

const taskColumns = `
	SELECT id, instance_id, org_id, state, name, status,
	       assigned_role, assignee, priority, sla_hours, due_at,
	       escalation_level, escalations,
	       started_at, completed_at, completed_by, completion_comment,
	       cancelled_at, created_at, updated_at`

func (s *TaskStore) Create(ctx context.Context, task *workflow.Task) error {
	escalations, err := json.Marshal(task.Escalations)
	if err != nil {
		return fmt.Errorf("marshal escalations: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO workflow_tasks (
			id, instance_id, org_id, state, name, status,
			assigned_role, assignee, priority, sla_hours, due_at,
			escalation_level, escalations,
			started_at, completed_at, completed_by, completion_comment,
			cancelled_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		uuid.UUID(task.ID),
		uuid.UUID(task.InstanceID),
		uuid.UUID(task.OrgID),
		task.State,
		task.Name,
		string(task.Status),
		task.AssignedRole,
		nullableUUID(uuid.UUID(task.Assignee)),
		task.Priority,
		task.SLAHours,
		task.DueAt,
		task.EscalationLevel,
		escalations,
		task.StartedAt,
		task.CompletedAt,
		nullableUUID(uuid.UUID(task.CompletedBy)),
		task.CompletionComment,
		task.CancelledAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow task: %w", err)
	}
	return nil
}

func (s *TaskStore) Get(ctx context.Context, taskID id.TaskID) (*workflow.Task, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		taskColumns+` FROM workflow_tasks WHERE id = $1`, uuid.UUID(taskID))
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	return task, err
}

func (s *TaskStore) Update(ctx context.Context, task *workflow.Task) error {
	escalations, err := json.Marshal(task.Escalations)
	if err != nil {
		return fmt.Errorf("marshal escalations: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE workflow_tasks
		SET status = $1, assignee = $2, priority = $3,
		    escalation_level = $4, escalations = $5,
		    started_at = $6, completed_at = $7, completed_by = $8,
		    completion_comment = $9, cancelled_at = $10, updated_at = $11
		WHERE id = $12`,
		string(task.Status),
		nullableUUID(uuid.UUID(task.Assignee)),
		task.Priority,
		task.EscalationLevel,
		escalations,
		task.StartedAt,
		task.CompletedAt,
		nullableUUID(uuid.UUID(task.CompletedBy)),
		task.CompletionComment,
		task.CancelledAt,
		task.UpdatedAt,
		uuid.UUID(task.ID),
	)
	if err != nil {
		return fmt.Errorf("update workflow task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow task: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *TaskStore) ListByInstance(ctx context.Context, instanceID id.InstanceID) ([]*workflow.Task, error) {
	return s.list(ctx,
		taskColumns+` FROM workflow_tasks WHERE instance_id = $1 ORDER BY created_at ASC`,
		uuid.UUID(instanceID))
}

func (s *TaskStore) ListActiveByRole(ctx context.Context, orgID id.OrgID, role string) ([]*workflow.Task, error) {
	return s.list(ctx,
		taskColumns+` FROM workflow_tasks
		 WHERE org_id = $1 AND status IN ('pending', 'in_progress')
		   AND (assigned_role = '' OR assigned_role = $2)
		 ORDER BY priority DESC, created_at ASC`,
		uuid.UUID(orgID), role)
}

func (s *TaskStore) ListOverdue(ctx context.Context, orgID id.OrgID, now time.Time) ([]*workflow.Task, error) {
	return s.list(ctx,
		taskColumns+` FROM workflow_tasks
		 WHERE org_id = $1 AND status IN ('pending', 'in_progress')
		   AND due_at IS NOT NULL AND due_at < $2
		 ORDER BY due_at ASC`,
		uuid.UUID(orgID), now)
}

func (s *TaskStore) list(ctx context.Context, query string, args ...any) ([]*workflow.Task, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflow tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*workflow.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (*workflow.Task, error) {
	var (
		task        workflow.Task
		taskID      uuid.UUID
		instanceID  uuid.UUID
		orgID       uuid.UUID
		status      string
		assignee    *uuid.UUID
		escalations []byte
		completedBy *uuid.UUID
	)
	err := row.Scan(
		&taskID, &instanceID, &orgID, &task.State, &task.Name, &status,
		&task.AssignedRole, &assignee, &task.Priority, &task.SLAHours, &task.DueAt,
		&task.EscalationLevel, &escalations,
		&task.StartedAt, &task.CompletedAt, &completedBy, &task.CompletionComment,
		&task.CancelledAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.ID = id.TaskID(taskID)
	task.InstanceID = id.InstanceID(instanceID)
	task.OrgID = id.OrgID(orgID)
	task.Status = workflow.TaskStatus(status)
	if assignee != nil {
		task.Assignee = id.UserID(*assignee)
	}
	if completedBy != nil {
		task.CompletedBy = id.UserID(*completedBy)
	}
	if len(escalations) > 0 && string(escalations) != "null" {
		if err := json.Unmarshal(escalations, &task.Escalations); err != nil {
			return nil, fmt.Errorf("unmarshal escalations: %w", err)
		}
	}
	return &task, nil
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}
