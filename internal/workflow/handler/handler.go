// Package handler exposes the workflow instance and task endpoints.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/platform/httputil"
	"vellum/pkg/requestcontext"

	"vellum/internal/audit"
	"vellum/internal/workflow"
)

type Handler struct {
	service *workflow.Service
	logger  *slog.Logger
}

func New(service *workflow.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts workflow endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Get("/", h.HandleList)
		r.Get("/{instanceID}", h.HandleGet)
		r.Get("/{instanceID}/tasks", h.HandleTasks)
		r.Post("/{instanceID}/transition", h.HandleTransition)
		r.Post("/{instanceID}/cancel", h.HandleCancel)
		r.Post("/{instanceID}/suspend", h.HandleSuspend)
		r.Post("/{instanceID}/resume", h.HandleResume)
	})
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/queue", h.HandleQueue)
		r.Get("/overdue", h.HandleOverdue)
		r.Post("/{taskID}/claim", h.HandleClaim)
		r.Post("/{taskID}/release", h.HandleRelease)
		r.Post("/{taskID}/complete", h.HandleComplete)
		r.Post("/{taskID}/cancel", h.HandleCancelTask)
		r.Post("/{taskID}/escalate", h.HandleEscalate)
	})
}

func scope(r *http.Request, w http.ResponseWriter) (id.OrgID, audit.Actor, bool) {
	ctx := r.Context()
	orgID := requestcontext.OrgID(ctx)
	if orgID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "organization scope is required"))
		return id.OrgID{}, audit.Actor{}, false
	}
	return orgID, audit.ActorFromContext(ctx), true
}

func instanceIDParam(w http.ResponseWriter, r *http.Request) (id.InstanceID, bool) {
	instanceID, err := id.ParseInstanceID(chi.URLParam(r, "instanceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.InstanceID{}, false
	}
	return instanceID, true
}

func taskIDParam(w http.ResponseWriter, r *http.Request) (id.TaskID, bool) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.TaskID{}, false
	}
	return taskID, true
}

// HandleStart handles POST /workflows.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	instance, err := h.service.Start(ctx, workflow.StartInput{
		OrgID:       orgID,
		Definition:  req.Definition,
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
	}, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "workflow start failed",
			"request_id", requestcontext.RequestID(ctx),
			"definition", req.Definition, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, instance)
}

// HandleList handles GET /workflows.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	instances, err := h.service.List(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"instances": instances,
		"count":     len(instances),
	})
}

// HandleGet handles GET /workflows/{instanceID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	instanceID, ok := instanceIDParam(w, r)
	if !ok {
		return
	}
	instance, err := h.service.Get(r.Context(), orgID, instanceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, instance)
}

// HandleTasks handles GET /workflows/{instanceID}/tasks.
func (h *Handler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	instanceID, ok := instanceIDParam(w, r)
	if !ok {
		return
	}
	tasks, err := h.service.Tasks(r.Context(), orgID, instanceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// HandleTransition handles POST /workflows/{instanceID}/transition.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	instanceID, ok := instanceIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	instance, err := h.service.TransitionTo(ctx, orgID, instanceID, req.State, req.Comment, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, instance)
}

// HandleCancel handles POST /workflows/{instanceID}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	instanceID, ok := instanceIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	instance, err := h.service.Cancel(ctx, orgID, instanceID, req.Reason, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, instance)
}

// HandleSuspend handles POST /workflows/{instanceID}/suspend.
func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	instanceID, ok := instanceIDParam(w, r)
	if !ok {
		return
	}
	instance, err := h.service.Suspend(r.Context(), orgID, instanceID, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, instance)
}

// HandleResume handles POST /workflows/{instanceID}/resume.
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	instanceID, ok := instanceIDParam(w, r)
	if !ok {
		return
	}
	instance, err := h.service.Resume(r.Context(), orgID, instanceID, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, instance)
}

// HandleQueue handles GET /tasks/queue?role=.
func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	tasks, err := h.service.Queue(r.Context(), orgID, r.URL.Query().Get("role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// HandleOverdue handles GET /tasks/overdue.
func (h *Handler) HandleOverdue(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	tasks, err := h.service.OverdueTasks(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// HandleClaim handles POST /tasks/{taskID}/claim.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "acting user is required"))
		return
	}
	task, err := h.service.Claim(ctx, orgID, taskID, userID, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, task)
}

// HandleRelease handles POST /tasks/{taskID}/release.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "acting user is required"))
		return
	}
	task, err := h.service.Release(ctx, orgID, taskID, userID, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, task)
}

// HandleComplete handles POST /tasks/{taskID}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CommentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	task, err := h.service.Complete(ctx, orgID, taskID, req.Comment, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, task)
}

// HandleCancelTask handles POST /tasks/{taskID}/cancel.
func (h *Handler) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	task, err := h.service.CancelTask(r.Context(), orgID, taskID, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, task)
}

// HandleEscalate handles POST /tasks/{taskID}/escalate.
func (h *Handler) HandleEscalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	task, err := h.service.Escalate(ctx, orgID, taskID, req.Reason, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, task)
}
