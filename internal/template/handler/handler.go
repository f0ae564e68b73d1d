// Package handler exposes the template lifecycle endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/platform/httputil"
	"vellum/pkg/requestcontext"

	"vellum/internal/audit"
	"vellum/internal/template"
)

type Handler struct {
	service *template.Service
	logger  *slog.Logger
}

func New(service *template.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts template endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Post("/", h.HandleRegister)
		r.Get("/", h.HandleList)
		r.Get("/{templateID}", h.HandleGet)
		r.Post("/{templateID}/activate", h.HandleActivate)
		r.Post("/{templateID}/archive", h.HandleArchive)
		r.Put("/{templateID}/mappings", h.HandleUpdateMappings)
		r.Put("/{templateID}/signatories", h.HandleUpdateSignatories)
	})
}

// scope extracts the organization and actor every template operation needs.
func scope(r *http.Request, w http.ResponseWriter) (id.OrgID, audit.Actor, bool) {
	ctx := r.Context()
	orgID := requestcontext.OrgID(ctx)
	if orgID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "organization scope is required"))
		return id.OrgID{}, audit.Actor{}, false
	}
	return orgID, audit.ActorFromContext(ctx), true
}

func parseUserOverride(raw string) (id.UserID, error) {
	return id.ParseUserID(raw)
}

func templateIDParam(w http.ResponseWriter, r *http.Request) (id.TemplateID, bool) {
	templateID, err := id.ParseTemplateID(chi.URLParam(r, "templateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.TemplateID{}, false
	}
	return templateID, true
}

// HandleRegister handles POST /templates.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	signatories, err := toSignatories(req.Signatories)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	tpl, err := h.service.Register(ctx, template.RegisterInput{
		OrgID:             orgID,
		Name:              req.Name,
		ModuleType:        req.ModuleType,
		MainCategory:      req.MainCategory,
		Category:          req.Category,
		Content:           req.Content(),
		ContentType:       req.ContentType,
		SequentialSigning: req.SequentialSigning,
		Signatories:       signatories,
		Mappings:          req.Mappings,
	}, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "template registration failed",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tpl)
}

// HandleList handles GET /templates.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	templates, err := h.service.List(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"templates": templates,
		"count":     len(templates),
	})
}

// HandleGet handles GET /templates/{templateID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	templateID, ok := templateIDParam(w, r)
	if !ok {
		return
	}
	tpl, err := h.service.Get(r.Context(), orgID, templateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tpl)
}

// HandleActivate handles POST /templates/{templateID}/activate.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Activate)
}

// HandleArchive handles POST /templates/{templateID}/archive.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Archive)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, orgID id.OrgID, templateID id.TemplateID, actor audit.Actor) (*template.Template, error)) {
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	templateID, ok := templateIDParam(w, r)
	if !ok {
		return
	}
	tpl, err := op(r.Context(), orgID, templateID, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tpl)
}

// HandleUpdateMappings handles PUT /templates/{templateID}/mappings.
func (h *Handler) HandleUpdateMappings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	templateID, ok := templateIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[MappingsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	tpl, err := h.service.UpdateMappings(ctx, orgID, templateID, req.Mappings, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tpl)
}

// HandleUpdateSignatories handles PUT /templates/{templateID}/signatories.
func (h *Handler) HandleUpdateSignatories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	templateID, ok := templateIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SignatoriesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	signatories, err := toSignatories(req.Signatories)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tpl, err := h.service.UpdateSignatories(ctx, orgID, templateID, signatories, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tpl)
}
