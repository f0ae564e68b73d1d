package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/requestcontext"

	"vellum/internal/audit"
	"vellum/internal/identity"
	"vellum/internal/platform/metrics"
)

// Service runs workflow instances against registered definitions.
type Service struct {
	instances InstanceStore
	tasks     TaskStore
	directory identity.Directory
	notifier  Notifier
	audit     *audit.Service
	metrics   *metrics.Metrics
	log       *slog.Logger

	mu          sync.RWMutex
	definitions map[string]Definition
}

func NewService(
	instances InstanceStore,
	tasks TaskStore,
	directory identity.Directory,
	notifier Notifier,
	auditSvc *audit.Service,
	m *metrics.Metrics,
	log *slog.Logger,
) *Service {
	return &Service{
		instances:   instances,
		tasks:       tasks,
		directory:   directory,
		notifier:    notifier,
		audit:       auditSvc,
		metrics:     m,
		log:         log,
		definitions: make(map[string]Definition),
	}
}

// RegisterDefinition adds a named state graph. Running instances keep the
// snapshot they started with.
func (s *Service) RegisterDefinition(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.Name] = def
	return nil
}

func (s *Service) definition(name string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[name]
	if !ok {
		return Definition{}, dErrors.Newf(dErrors.CodeNotFound, "workflow definition %q is not registered", name)
	}
	return def, nil
}

// StartInput names the definition and the business subject the process gates.
type StartInput struct {
	OrgID       id.OrgID
	Definition  string
	SubjectType string
	SubjectID   string
}

// Start creates an active instance at the definition's initial state and opens
// the initial state's task.
func (s *Service) Start(ctx context.Context, in StartInput, actor audit.Actor) (*Instance, error) {
	if in.OrgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "organization id is required")
	}
	def, err := s.definition(in.Definition)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	instance := &Instance{
		ID:           id.NewInstanceID(),
		OrgID:        in.OrgID,
		Definition:   def,
		Status:       InstanceActive,
		CurrentState: def.InitialState,
		SubjectType:  in.SubjectType,
		SubjectID:    in.SubjectID,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.instances.Create(ctx, instance); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "create workflow instance", err)
	}
	if err := s.openTask(ctx, instance, def.InitialState, now); err != nil {
		return nil, err
	}

	s.audit.LogAsync(ctx, audit.Entry{
		Type:   audit.TypeWorkflow,
		Action: "workflow.started",
		Actor:  actor,
		Target: audit.Target{ID: instance.ID.String(), Type: "workflow_instance", OrgID: instance.OrgID},
		NewValues: map[string]any{
			"definition":    def.Name,
			"initial_state": def.InitialState,
			"subject_type":  in.SubjectType,
			"subject_id":    in.SubjectID,
		},
	})
	s.log.Info("workflow started",
		"instance_id", instance.ID, "definition", def.Name, "org_id", instance.OrgID)
	return instance, nil
}

// openTask creates the pending task serving a state, when the definition
// declares one. DueAt derives from the task spec's SLA hours.
func (s *Service) openTask(ctx context.Context, instance *Instance, state string, now time.Time) error {
	spec, ok := instance.Definition.Tasks[state]
	if !ok {
		return nil
	}
	name := spec.Name
	if name == "" {
		name = state
	}
	task := &Task{
		ID:           id.NewTaskID(),
		InstanceID:   instance.ID,
		OrgID:        instance.OrgID,
		State:        state,
		Name:         name,
		Status:       TaskPending,
		AssignedRole: spec.AssignedRole,
		Priority:     spec.Priority,
		SLAHours:     spec.SLAHours,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if spec.SLAHours > 0 {
		due := now.Add(time.Duration(spec.SLAHours) * time.Hour)
		task.DueAt = &due
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "create workflow task", err)
	}
	return nil
}

// Get fetches an instance scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID id.OrgID, instanceID id.InstanceID) (*Instance, error) {
	instance, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.OrgID != orgID {
		return nil, dErrors.New(dErrors.CodeNotFound, "workflow instance not found")
	}
	return instance, nil
}

// List returns the organization's instances.
func (s *Service) List(ctx context.Context, orgID id.OrgID) ([]*Instance, error) {
	return s.instances.ListByOrg(ctx, orgID)
}

// Tasks returns the instance's tasks.
func (s *Service) Tasks(ctx context.Context, orgID id.OrgID, instanceID id.InstanceID) ([]*Task, error) {
	if _, err := s.Get(ctx, orgID, instanceID); err != nil {
		return nil, err
	}
	return s.tasks.ListByInstance(ctx, instanceID)
}

// TransitionTo moves the instance along its definition graph. Tasks still open
// for earlier states are cancelled, and the new state's task is opened unless
// the transition completed the instance.
func (s *Service) TransitionTo(ctx context.Context, orgID id.OrgID, instanceID id.InstanceID, newState, comment string, actor audit.Actor) (*Instance, error) {
	instance, err := s.Get(ctx, orgID, instanceID)
	if err != nil {
		return nil, err
	}
	previous := instance.CurrentState
	now := requestcontext.Now(ctx).UTC()
	if err := instance.ApplyTransition(newState, actor.ID, comment, now); err != nil {
		return nil, err
	}
	if err := s.instances.Update(ctx, instance); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update workflow instance", err)
	}
	if err := s.cancelOpenTasks(ctx, instance, now); err != nil {
		return nil, err
	}
	if instance.Status == InstanceActive {
		if err := s.openTask(ctx, instance, newState, now); err != nil {
			return nil, err
		}
	}

	s.metrics.WorkflowTransitions.Inc()
	if _, err := s.audit.LogModelChange(ctx, audit.Entry{
		Type:       audit.TypeWorkflow,
		Action:     "workflow.transitioned",
		Actor:      actor,
		Target:     audit.Target{ID: instance.ID.String(), Type: "workflow_instance", OrgID: instance.OrgID},
		ChangeData: map[string]any{"comment": comment},
	}, map[string][2]any{"state": {previous, newState}}); err != nil {
		s.log.Error("audit write failed", "action", "workflow.transitioned", "error", err)
	}
	s.log.Info("workflow transitioned",
		"instance_id", instance.ID, "from", previous, "to", newState,
		"status", instance.Status)
	return instance, nil
}

func (s *Service) cancelOpenTasks(ctx context.Context, instance *Instance, now time.Time) error {
	tasks, err := s.tasks.ListByInstance(ctx, instance.ID)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "list workflow tasks", err)
	}
	for _, task := range tasks {
		if !task.Active() {
			continue
		}
		if err := task.Cancel(now); err != nil {
			return err
		}
		if err := s.tasks.Update(ctx, task); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "cancel workflow task", err)
		}
	}
	return nil
}

// Cancel terminates the instance and its open tasks.
func (s *Service) Cancel(ctx context.Context, orgID id.OrgID, instanceID id.InstanceID, reason string, actor audit.Actor) (*Instance, error) {
	instance, err := s.Get(ctx, orgID, instanceID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	if err := instance.ApplyCancel(reason, now); err != nil {
		return nil, err
	}
	if err := s.instances.Update(ctx, instance); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update workflow instance", err)
	}
	if err := s.cancelOpenTasks(ctx, instance, now); err != nil {
		return nil, err
	}
	s.audit.LogAsync(ctx, audit.Entry{
		Type:       audit.TypeWorkflow,
		Action:     "workflow.cancelled",
		Actor:      actor,
		Target:     audit.Target{ID: instance.ID.String(), Type: "workflow_instance", OrgID: instance.OrgID},
		ChangeData: map[string]any{"reason": reason},
	})
	return instance, nil
}

// Suspend pauses an active instance. Open tasks stay open; SLA clocks keep
// running.
func (s *Service) Suspend(ctx context.Context, orgID id.OrgID, instanceID id.InstanceID, actor audit.Actor) (*Instance, error) {
	return s.instanceOp(ctx, orgID, instanceID, actor, "workflow.suspended",
		func(instance *Instance, now time.Time) error { return instance.ApplySuspend(now) })
}

// Resume reactivates a suspended instance.
func (s *Service) Resume(ctx context.Context, orgID id.OrgID, instanceID id.InstanceID, actor audit.Actor) (*Instance, error) {
	return s.instanceOp(ctx, orgID, instanceID, actor, "workflow.resumed",
		func(instance *Instance, now time.Time) error { return instance.ApplyResume(now) })
}

func (s *Service) instanceOp(ctx context.Context, orgID id.OrgID, instanceID id.InstanceID, actor audit.Actor, action string, apply func(*Instance, time.Time) error) (*Instance, error) {
	instance, err := s.Get(ctx, orgID, instanceID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	if err := apply(instance, now); err != nil {
		return nil, err
	}
	if err := s.instances.Update(ctx, instance); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update workflow instance", err)
	}
	s.audit.LogAsync(ctx, audit.Entry{
		Type:      audit.TypeWorkflow,
		Action:    action,
		Actor:     actor,
		Target:    audit.Target{ID: instance.ID.String(), Type: "workflow_instance", OrgID: instance.OrgID},
		NewValues: map[string]any{"status": instance.Status},
	})
	return instance, nil
}

// -----------------------------------------------------------------------------
// Task operations
// -----------------------------------------------------------------------------

func (s *Service) task(ctx context.Context, orgID id.OrgID, taskID id.TaskID) (*Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OrgID != orgID {
		return nil, dErrors.New(dErrors.CodeNotFound, "workflow task not found")
	}
	return task, nil
}

// Claim assigns a pending task to the calling user, enforcing the role gate.
func (s *Service) Claim(ctx context.Context, orgID id.OrgID, taskID id.TaskID, userID id.UserID, actor audit.Actor) (*Task, error) {
	task, err := s.task(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}
	user, err := s.directory.FindByID(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeNotFound, "resolve claimant", err)
	}
	now := requestcontext.Now(ctx).UTC()
	if err := task.Claim(user, now); err != nil {
		return nil, err
	}
	return s.persistTaskOp(ctx, task, "task.claimed", actor, map[string]any{"assignee": userID})
}

// Release returns a claimed task to the pool.
func (s *Service) Release(ctx context.Context, orgID id.OrgID, taskID id.TaskID, userID id.UserID, actor audit.Actor) (*Task, error) {
	task, err := s.task(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	if err := task.Release(userID, now); err != nil {
		return nil, err
	}
	return s.persistTaskOp(ctx, task, "task.released", actor, nil)
}

// Complete finishes the task.
func (s *Service) Complete(ctx context.Context, orgID id.OrgID, taskID id.TaskID, comment string, actor audit.Actor) (*Task, error) {
	task, err := s.task(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	if err := task.Complete(actor.ID, comment, now); err != nil {
		return nil, err
	}
	return s.persistTaskOp(ctx, task, "task.completed", actor, map[string]any{"comment": comment})
}

// CancelTask terminates the task. A repeated cancel is a no-op.
func (s *Service) CancelTask(ctx context.Context, orgID id.OrgID, taskID id.TaskID, actor audit.Actor) (*Task, error) {
	task, err := s.task(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == TaskCancelled {
		return task, nil
	}
	now := requestcontext.Now(ctx).UTC()
	if err := task.Cancel(now); err != nil {
		return nil, err
	}
	return s.persistTaskOp(ctx, task, "task.cancelled", actor, nil)
}

// Escalate raises the task a level and fires the escalation notification.
func (s *Service) Escalate(ctx context.Context, orgID id.OrgID, taskID id.TaskID, reason string, actor audit.Actor) (*Task, error) {
	task, err := s.task(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	if err := task.Escalate(reason, now); err != nil {
		return nil, err
	}
	task, err = s.persistTaskOp(ctx, task, "task.escalated", actor, map[string]any{
		"level":    task.EscalationLevel,
		"priority": task.Priority,
		"reason":   reason,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.TaskEscalations.Inc()
	if err := s.notifier.TaskEscalated(ctx, task, reason); err != nil {
		// Notification delivery is best-effort; the escalation itself stands.
		s.log.Error("escalation notification failed", "task_id", task.ID, "error", err)
	}
	return task, nil
}

func (s *Service) persistTaskOp(ctx context.Context, task *Task, action string, actor audit.Actor, change map[string]any) (*Task, error) {
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update workflow task", err)
	}
	s.audit.LogAsync(ctx, audit.Entry{
		Type:       audit.TypeWorkflow,
		Action:     action,
		Actor:      actor,
		Target:     audit.Target{ID: task.ID.String(), Type: "workflow_task", OrgID: task.OrgID},
		ChangeData: change,
		NewValues:  map[string]any{"status": task.Status},
	})
	return task, nil
}

// Queue returns the active tasks a role may work on.
func (s *Service) Queue(ctx context.Context, orgID id.OrgID, role string) ([]*Task, error) {
	return s.tasks.ListActiveByRole(ctx, orgID, role)
}

// OverdueTasks returns the active tasks past their deadline. External
// schedulers poll this and decide whether to escalate.
func (s *Service) OverdueTasks(ctx context.Context, orgID id.OrgID) ([]*Task, error) {
	return s.tasks.ListOverdue(ctx, orgID, requestcontext.Now(ctx).UTC())
}
