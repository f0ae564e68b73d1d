// Package workflow drives multi-step approval processes. It is independent of
// documents and signatures: an instance walks a definition graph, and each
// state is served by a role-assigned task with an SLA deadline.
package workflow

import (
	"time"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"

	"vellum/internal/identity"
)

// Definition declares the state graph an instance walks. Definitions are
// registered at wiring time and snapshotted onto each instance at start, so a
// running instance never sees a definition change underneath it.
type Definition struct {
	Name         string              `json:"name"`
	InitialState string              `json:"initial_state"`
	FinalStates  []string            `json:"final_states"`
	Transitions  map[string][]string `json:"transitions"`
	Tasks        map[string]TaskSpec `json:"tasks"`
}

// TaskSpec describes the task created when an instance enters a state.
type TaskSpec struct {
	Name         string `json:"name"`
	AssignedRole string `json:"assigned_role,omitempty"`
	SLAHours     int    `json:"sla_hours,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

// Validate checks the graph is well-formed: an initial state, and every
// transition target declared somewhere in the graph or as a final state.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "definition name must not be empty")
	}
	if d.InitialState == "" {
		return dErrors.New(dErrors.CodeValidation, "definition requires an initial state")
	}
	known := map[string]bool{d.InitialState: true}
	for state := range d.Transitions {
		known[state] = true
	}
	for _, state := range d.FinalStates {
		known[state] = true
	}
	for state, targets := range d.Transitions {
		for _, target := range targets {
			if !known[target] {
				return dErrors.Newf(dErrors.CodeValidation,
					"transition %s -> %s targets an undeclared state", state, target)
			}
		}
	}
	return nil
}

// CanTransition checks reachability in the definition graph.
func (d *Definition) CanTransition(from, to string) bool {
	for _, target := range d.Transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsFinal reports whether entering the state completes the instance.
func (d *Definition) IsFinal(state string) bool {
	for _, final := range d.FinalStates {
		if final == state {
			return true
		}
	}
	return false
}

// InstanceStatus is the instance lifecycle, orthogonal to CurrentState.
type InstanceStatus string

const (
	InstanceActive    InstanceStatus = "active"
	InstanceCompleted InstanceStatus = "completed"
	InstanceCancelled InstanceStatus = "cancelled"
	InstanceSuspended InstanceStatus = "suspended"
)

// HistoryEntry is one step of the append-only state history.
type HistoryEntry struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	ActorID id.UserID `json:"actor_id"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

// Instance is one running process.
type Instance struct {
	ID         id.InstanceID  `json:"id"`
	OrgID      id.OrgID       `json:"org_id"`
	Definition Definition     `json:"definition"`
	Status     InstanceStatus `json:"status"`

	CurrentState string         `json:"current_state"`
	StateHistory []HistoryEntry `json:"state_history"`

	// SubjectType/SubjectID name the business object the process gates
	// (a document, a leave request).
	SubjectType string `json:"subject_type,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`

	CreatedBy    id.UserID  `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// ApplyTransition moves the instance to newState: requires an active instance
// and reachability per the definition graph. The step is appended to the
// history; entering a final state completes the instance.
func (i *Instance) ApplyTransition(newState string, actorID id.UserID, comment string, at time.Time) error {
	if i.Status != InstanceActive {
		return dErrors.Newf(dErrors.CodeInvalidState, "workflow instance is %s, not active", i.Status)
	}
	if !i.Definition.CanTransition(i.CurrentState, newState) {
		return dErrors.Newf(dErrors.CodeInvalidState,
			"state %s is not reachable from %s", newState, i.CurrentState)
	}
	i.StateHistory = append(i.StateHistory, HistoryEntry{
		From:    i.CurrentState,
		To:      newState,
		ActorID: actorID,
		Comment: comment,
		At:      at,
	})
	i.CurrentState = newState
	i.UpdatedAt = at
	if i.Definition.IsFinal(newState) {
		i.Status = InstanceCompleted
		i.CompletedAt = &at
	}
	return nil
}

// ApplyCancel terminates the instance from active or suspended.
func (i *Instance) ApplyCancel(reason string, at time.Time) error {
	if i.Status != InstanceActive && i.Status != InstanceSuspended {
		return dErrors.Newf(dErrors.CodeInvalidState, "workflow instance is %s and cannot be cancelled", i.Status)
	}
	i.Status = InstanceCancelled
	i.CancelledAt = &at
	i.CancelReason = reason
	i.UpdatedAt = at
	return nil
}

// ApplySuspend pauses an active instance.
func (i *Instance) ApplySuspend(at time.Time) error {
	if i.Status != InstanceActive {
		return dErrors.Newf(dErrors.CodeInvalidState, "workflow instance is %s and cannot be suspended", i.Status)
	}
	i.Status = InstanceSuspended
	i.UpdatedAt = at
	return nil
}

// ApplyResume reactivates a suspended instance.
func (i *Instance) ApplyResume(at time.Time) error {
	if i.Status != InstanceSuspended {
		return dErrors.Newf(dErrors.CodeInvalidState, "workflow instance is %s, only suspended instances resume", i.Status)
	}
	i.Status = InstanceActive
	i.UpdatedAt = at
	return nil
}

// TaskStatus is the task state machine: pending -> in_progress -> completed,
// with cancelled reachable from pending or in_progress.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// escalationPriorityStep is the fixed priority bump per escalation.
const escalationPriorityStep = 10

// EscalationRecord is one append-only escalation history entry.
type EscalationRecord struct {
	Level  int       `json:"level"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Task is one unit of work gating an instance state.
type Task struct {
	ID         id.TaskID     `json:"id"`
	InstanceID id.InstanceID `json:"instance_id"`
	OrgID      id.OrgID      `json:"org_id"`

	State  string     `json:"state"`
	Name   string     `json:"name"`
	Status TaskStatus `json:"status"`

	AssignedRole string    `json:"assigned_role,omitempty"`
	Assignee     id.UserID `json:"assignee,omitempty"`

	Priority        int                `json:"priority"`
	SLAHours        int                `json:"sla_hours,omitempty"`
	DueAt           *time.Time         `json:"due_at,omitempty"`
	EscalationLevel int                `json:"escalation_level"`
	Escalations     []EscalationRecord `json:"escalations,omitempty"`

	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CompletedBy       id.UserID  `json:"completed_by,omitempty"`
	CompletionComment string     `json:"completion_comment,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the task still gates its state.
func (t *Task) Active() bool {
	return t.Status == TaskPending || t.Status == TaskInProgress
}

// Claim assigns the task to the user. An assigned role restricts who may
// claim; an unset role means anyone.
func (t *Task) Claim(user *identity.User, at time.Time) error {
	if t.Status != TaskPending {
		return dErrors.Newf(dErrors.CodeInvalidState, "task is %s, only pending tasks can be claimed", t.Status)
	}
	if t.AssignedRole != "" && !user.HasRole(t.AssignedRole) {
		return dErrors.Newf(dErrors.CodeForbidden, "task requires role %s", t.AssignedRole)
	}
	t.Assignee = user.ID
	t.Status = TaskInProgress
	t.StartedAt = &at
	t.UpdatedAt = at
	return nil
}

// Release returns a claimed task to the pool. Only the assignee may release.
func (t *Task) Release(userID id.UserID, at time.Time) error {
	if t.Status != TaskInProgress {
		return dErrors.Newf(dErrors.CodeInvalidState, "task is %s, only in-progress tasks can be released", t.Status)
	}
	if t.Assignee != userID {
		return dErrors.New(dErrors.CodeForbidden, "only the assignee can release a task")
	}
	t.Assignee = id.UserID{}
	t.Status = TaskPending
	t.StartedAt = nil
	t.UpdatedAt = at
	return nil
}

// Complete finishes the task from pending or in progress.
func (t *Task) Complete(actorID id.UserID, comment string, at time.Time) error {
	if t.Status != TaskPending && t.Status != TaskInProgress {
		return dErrors.Newf(dErrors.CodeInvalidState, "task is %s and cannot be completed", t.Status)
	}
	t.Status = TaskCompleted
	t.CompletedAt = &at
	t.CompletedBy = actorID
	t.CompletionComment = comment
	t.UpdatedAt = at
	return nil
}

// Cancel terminates the task. Cancelling an already-cancelled task is a no-op;
// cancelling a completed task is rejected.
func (t *Task) Cancel(at time.Time) error {
	if t.Status == TaskCancelled {
		return nil
	}
	if t.Status == TaskCompleted {
		return dErrors.New(dErrors.CodeInvalidState, "completed tasks cannot be cancelled")
	}
	t.Status = TaskCancelled
	t.CancelledAt = &at
	t.UpdatedAt = at
	return nil
}

// Escalate raises the task one escalation level and bumps its priority. The
// notification side effect belongs to the caller.
func (t *Task) Escalate(reason string, at time.Time) error {
	if !t.Active() {
		return dErrors.Newf(dErrors.CodeInvalidState, "task is %s and cannot be escalated", t.Status)
	}
	t.EscalationLevel++
	t.Priority += escalationPriorityStep
	t.Escalations = append(t.Escalations, EscalationRecord{
		Level:  t.EscalationLevel,
		At:     at,
		Reason: reason,
	})
	t.UpdatedAt = at
	return nil
}

// Overdue is the derived deadline view: past due and still active. It is never
// stored; schedulers query it.
func (t *Task) Overdue(now time.Time) bool {
	if t.DueAt == nil || !t.Active() {
		return false
	}
	return now.After(*t.DueAt)
}

// SLACompliant reports deadline health: tasks without a deadline always
// comply; completed tasks compare their completion time against it; open
// tasks compare now.
func (t *Task) SLACompliant(now time.Time) bool {
	if t.DueAt == nil {
		return true
	}
	if t.Status == TaskCompleted && t.CompletedAt != nil {
		return !t.CompletedAt.After(*t.DueAt)
	}
	return !now.After(*t.DueAt)
}
