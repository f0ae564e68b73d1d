// Package memory is the in-process workflow store used by tests and
// development wiring.
package memory

import (
	"context"
	"sync"
	"time"

	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"

	"vellum/internal/workflow"
)

type InstanceStore struct {
	mu        sync.RWMutex
	instances map[id.InstanceID]*workflow.Instance
}

func NewInstanceStore() *InstanceStore {
	return &InstanceStore{instances: make(map[id.InstanceID]*workflow.Instance)}
}

func (s *InstanceStore) Create(_ context.Context, instance *workflow.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[instance.ID]; exists {
		return sentinel.ErrConflict
	}
	s.instances[instance.ID] = cloneInstance(instance)
	return nil
}

func (s *InstanceStore) Get(_ context.Context, instanceID id.InstanceID) (*workflow.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instance, ok := s.instances[instanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneInstance(instance), nil
}

func (s *InstanceStore) Update(_ context.Context, instance *workflow.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[instance.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.instances[instance.ID] = cloneInstance(instance)
	return nil
}

func (s *InstanceStore) ListByOrg(_ context.Context, orgID id.OrgID) ([]*workflow.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*workflow.Instance
	for _, instance := range s.instances {
		if instance.OrgID == orgID {
			out = append(out, cloneInstance(instance))
		}
	}
	return out, nil
}

func cloneInstance(instance *workflow.Instance) *workflow.Instance {
	c := *instance
	c.StateHistory = append([]workflow.HistoryEntry(nil), instance.StateHistory...)
	return &c
}

type TaskStore struct {
	mu    sync.RWMutex
	tasks map[id.TaskID]*workflow.Task
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[id.TaskID]*workflow.Task)}
}

func (s *TaskStore) Create(_ context.Context, task *workflow.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return sentinel.ErrConflict
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) Get(_ context.Context, taskID id.TaskID) (*workflow.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneTask(task), nil
}

func (s *TaskStore) Update(_ context.Context, task *workflow.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) ListByInstance(_ context.Context, instanceID id.InstanceID) ([]*workflow.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*workflow.Task
	for _, task := range s.tasks {
		if task.InstanceID == instanceID {
			out = append(out, cloneTask(task))
		}
	}
	return out, nil
}

func (s *TaskStore) ListActiveByRole(_ context.Context, orgID id.OrgID, role string) ([]*workflow.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*workflow.Task
	for _, task := range s.tasks {
		if task.OrgID != orgID || !task.Active() {
			continue
		}
		if task.AssignedRole == "" || task.AssignedRole == role {
			out = append(out, cloneTask(task))
		}
	}
	return out, nil
}

func (s *TaskStore) ListOverdue(_ context.Context, orgID id.OrgID, now time.Time) ([]*workflow.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*workflow.Task
	for _, task := range s.tasks {
		if task.OrgID == orgID && task.Overdue(now) {
			out = append(out, cloneTask(task))
		}
	}
	return out, nil
}

func cloneTask(task *workflow.Task) *workflow.Task {
	c := *task
	c.Escalations = append([]workflow.EscalationRecord(nil), task.Escalations...)
	return &c
}
