package workflow

import (
	"context"
	"time"

	id "vellum/pkg/domain"
)

// InstanceStore persists workflow instances.
type InstanceStore interface {
	Create(ctx context.Context, instance *Instance) error
	Get(ctx context.Context, instanceID id.InstanceID) (*Instance, error)
	Update(ctx context.Context, instance *Instance) error
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*Instance, error)
}

// TaskStore persists workflow tasks.
type TaskStore interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, taskID id.TaskID) (*Task, error)
	Update(ctx context.Context, task *Task) error
	ListByInstance(ctx context.Context, instanceID id.InstanceID) ([]*Task, error)
	// ListActiveByRole feeds role work queues: pending and in-progress tasks
	// for the role, plus unrestricted tasks anyone may claim.
	ListActiveByRole(ctx context.Context, orgID id.OrgID, role string) ([]*Task, error)
	// ListOverdue returns active tasks whose deadline passed, for the external
	// scheduler that fires escalations.
	ListOverdue(ctx context.Context, orgID id.OrgID, now time.Time) ([]*Task, error)
}
