package workflow

import (
	"context"
	"log/slog"
)

// Notifier is the outbound side-effect contract for escalations. The engine
// computes when and what; delivery (mail, chat, pager) lives outside the core.
type Notifier interface {
	TaskEscalated(ctx context.Context, task *Task, reason string) error
}

// LogNotifier records escalations in the operational log. It is the default
// wiring until a delivery channel is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) TaskEscalated(_ context.Context, task *Task, reason string) error {
	n.Log.Warn("task escalated",
		"task_id", task.ID, "instance_id", task.InstanceID,
		"level", task.EscalationLevel, "priority", task.Priority, "reason", reason)
	return nil
}
