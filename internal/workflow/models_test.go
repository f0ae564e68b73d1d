package workflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vellum/internal/identity"
	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
)

type WorkflowModelSuite struct {
	suite.Suite
	now        time.Time
	definition Definition
}

func (s *WorkflowModelSuite) SetupTest() {
	s.now = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s.definition = Definition{
		Name:         "leave_approval",
		InitialState: "submitted",
		FinalStates:  []string{"approved", "rejected"},
		Transitions: map[string][]string{
			"submitted":      {"manager_review"},
			"manager_review": {"approved", "rejected", "hr_review"},
			"hr_review":      {"approved", "rejected"},
		},
		Tasks: map[string]TaskSpec{
			"submitted":      {Name: "Validate request", AssignedRole: "hr", SLAHours: 24},
			"manager_review": {Name: "Manager approval", AssignedRole: "manager", SLAHours: 48, Priority: 5},
		},
	}
}

func TestWorkflowModelSuite(t *testing.T) {
	suite.Run(t, new(WorkflowModelSuite))
}

func (s *WorkflowModelSuite) newInstance() *Instance {
	return &Instance{
		ID:           id.NewInstanceID(),
		OrgID:        id.OrgID(uuid.New()),
		Definition:   s.definition,
		Status:       InstanceActive,
		CurrentState: s.definition.InitialState,
		CreatedAt:    s.now,
	}
}

func (s *WorkflowModelSuite) newTask(status TaskStatus) *Task {
	due := s.now.Add(24 * time.Hour)
	return &Task{
		ID:           id.NewTaskID(),
		InstanceID:   id.NewInstanceID(),
		State:        "manager_review",
		Name:         "Manager approval",
		Status:       status,
		AssignedRole: "manager",
		Priority:     5,
		SLAHours:     24,
		DueAt:        &due,
		CreatedAt:    s.now,
	}
}

func (s *WorkflowModelSuite) TestDefinitionValidate() {
	s.Run("accepts a well-formed graph", func() {
		s.Require().NoError(s.definition.Validate())
	})

	s.Run("rejects missing initial state", func() {
		bad := s.definition
		bad.InitialState = ""
		err := bad.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects undeclared transition target", func() {
		bad := s.definition
		bad.Transitions = map[string][]string{"submitted": {"nowhere"}}
		err := bad.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *WorkflowModelSuite) TestInstanceTransitions() {
	instance := s.newInstance()
	actorID := id.NewUserID()

	s.Run("unreachable state is rejected", func() {
		err := instance.ApplyTransition("approved", actorID, "", s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("reachable state moves and records history", func() {
		s.Require().NoError(instance.ApplyTransition("manager_review", actorID, "forwarded", s.now))
		s.Equal("manager_review", instance.CurrentState)
		s.Equal(InstanceActive, instance.Status)
		s.Require().Len(instance.StateHistory, 1)
		s.Equal("submitted", instance.StateHistory[0].From)
		s.Equal("manager_review", instance.StateHistory[0].To)
		s.Equal("forwarded", instance.StateHistory[0].Comment)
	})

	s.Run("final state completes the instance", func() {
		s.Require().NoError(instance.ApplyTransition("approved", actorID, "", s.now))
		s.Equal(InstanceCompleted, instance.Status)
		s.Require().NotNil(instance.CompletedAt)
	})

	s.Run("completed instance rejects further transitions", func() {
		err := instance.ApplyTransition("rejected", actorID, "", s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *WorkflowModelSuite) TestSuspendResume() {
	instance := s.newInstance()

	s.Require().NoError(instance.ApplySuspend(s.now))
	s.Equal(InstanceSuspended, instance.Status)

	s.Run("suspended instance rejects transitions", func() {
		err := instance.ApplyTransition("manager_review", id.NewUserID(), "", s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("suspended instance can be cancelled", func() {
		copied := *instance
		s.Require().NoError(copied.ApplyCancel("abandoned", s.now))
		s.Equal(InstanceCancelled, copied.Status)
	})

	s.Run("resume reactivates", func() {
		s.Require().NoError(instance.ApplyResume(s.now))
		s.Equal(InstanceActive, instance.Status)
		s.Require().NoError(instance.ApplyTransition("manager_review", id.NewUserID(), "", s.now))
	})

	s.Run("resuming an active instance is rejected", func() {
		err := instance.ApplyResume(s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *WorkflowModelSuite) TestTaskClaimReleaseComplete() {
	manager := &identity.User{ID: id.NewUserID(), FullName: "Max Weber", Roles: []string{"manager"}}
	intern := &identity.User{ID: id.NewUserID(), FullName: "Ina Intern", Roles: []string{"intern"}}
	task := s.newTask(TaskPending)

	s.Run("claim enforces the assigned role", func() {
		err := task.Claim(intern, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("role holder claims", func() {
		s.Require().NoError(task.Claim(manager, s.now))
		s.Equal(TaskInProgress, task.Status)
		s.Equal(manager.ID, task.Assignee)
		s.Require().NotNil(task.StartedAt)
	})

	s.Run("double claim is rejected", func() {
		err := task.Claim(manager, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("only the assignee releases", func() {
		err := task.Release(intern.ID, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("release returns the task to the pool", func() {
		s.Require().NoError(task.Release(manager.ID, s.now))
		s.Equal(TaskPending, task.Status)
		s.True(task.Assignee.IsNil())
		s.Nil(task.StartedAt)
	})

	s.Run("complete from pending", func() {
		s.Require().NoError(task.Complete(manager.ID, "approved", s.now))
		s.Equal(TaskCompleted, task.Status)
		s.Equal("approved", task.CompletionComment)
	})

	s.Run("completed task cannot be completed again", func() {
		err := task.Complete(manager.ID, "", s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *WorkflowModelSuite) TestTaskCancel() {
	s.Run("cancel is idempotent", func() {
		task := s.newTask(TaskPending)
		s.Require().NoError(task.Cancel(s.now))
		s.Equal(TaskCancelled, task.Status)
		s.Require().NoError(task.Cancel(s.now))
	})

	s.Run("completed tasks cannot be cancelled", func() {
		task := s.newTask(TaskCompleted)
		err := task.Cancel(s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *WorkflowModelSuite) TestEscalation() {
	task := s.newTask(TaskPending)

	s.Require().NoError(task.Escalate("SLA breached", s.now))
	s.Equal(1, task.EscalationLevel)
	s.Equal(5+escalationPriorityStep, task.Priority)
	s.Require().Len(task.Escalations, 1)
	s.Equal("SLA breached", task.Escalations[0].Reason)

	s.Run("levels stack", func() {
		s.Require().NoError(task.Escalate("still overdue", s.now))
		s.Equal(2, task.EscalationLevel)
		s.Equal(5+2*escalationPriorityStep, task.Priority)
	})

	s.Run("terminal tasks cannot escalate", func() {
		done := s.newTask(TaskCompleted)
		err := done.Escalate("too late", s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

// TestDeadlines covers the derived overdue flag and SLA compliance across the
// task lifecycle.
func (s *WorkflowModelSuite) TestDeadlines() {
	task := s.newTask(TaskPending)
	beforeDue := s.now.Add(time.Hour)
	afterDue := s.now.Add(48 * time.Hour)

	s.Run("before the deadline", func() {
		s.False(task.Overdue(beforeDue))
		s.True(task.SLACompliant(beforeDue))
	})

	s.Run("past the deadline while open", func() {
		s.True(task.Overdue(afterDue))
		s.False(task.SLACompliant(afterDue))
	})

	s.Run("no deadline never breaches", func() {
		free := s.newTask(TaskPending)
		free.DueAt = nil
		s.False(free.Overdue(afterDue))
		s.True(free.SLACompliant(afterDue))
	})

	s.Run("completion late stays non-compliant but not overdue", func() {
		late := s.newTask(TaskPending)
		s.Require().NoError(late.Complete(id.NewUserID(), "", afterDue))
		s.False(late.Overdue(afterDue.Add(time.Hour)))
		s.False(late.SLACompliant(afterDue.Add(time.Hour)))
	})

	s.Run("completion in time stays compliant forever", func() {
		prompt := s.newTask(TaskPending)
		s.Require().NoError(prompt.Complete(id.NewUserID(), "", beforeDue))
		s.True(prompt.SLACompliant(afterDue))
	})

	s.Run("cancelled tasks are never overdue", func() {
		gone := s.newTask(TaskPending)
		s.Require().NoError(gone.Cancel(s.now))
		s.False(gone.Overdue(afterDue))
	})
}
