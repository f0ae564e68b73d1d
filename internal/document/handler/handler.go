// Package handler exposes document generation and signing endpoints.
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
	"vellum/internal/document"
)

type Handler struct {
	generator *document.Generator
	service   *document.Service
	logger    *slog.Logger
}

func New(generator *document.Generator, service *document.Service, logger *slog.Logger) *Handler {
	return &Handler{generator: generator, service: service, logger: logger}
}

// Register mounts document endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.HandleGenerate)
		r.Get("/", h.HandleList)
		r.Get("/pending", h.HandlePending)
		r.Get("/{documentID}", h.HandleGet)
		r.Get("/{documentID}/content", h.HandleContent)
		r.Post("/{documentID}/sign", h.HandleSign)
		r.Post("/{documentID}/cancel", h.HandleCancel)
		r.Post("/{documentID}/signers", h.HandleAssignSigner)
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

func documentIDParam(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, false
	}
	return documentID, true
}

// HandleGenerate handles POST /documents.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[GenerateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	templateID, err := id.ParseTemplateID(req.TemplateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	input := document.GenerateInput{
		OrgID:      orgID,
		TemplateID: templateID,
		Name:       req.Name,
		Context:    req.ResolutionContext(),
	}
	if req.EmployeeID != "" {
		employeeID, err := id.ParseUserID(req.EmployeeID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		input.EmployeeID = employeeID
	}

	doc, err := h.generator.Generate(ctx, input, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "document generation failed",
			"request_id", requestcontext.RequestID(ctx),
			"template_id", req.TemplateID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// HandleList handles GET /documents.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	documents, err := h.service.List(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"documents": documents,
		"count":     len(documents),
	})
}

// HandlePending handles GET /documents/pending: documents waiting on the
// calling user's signature.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "acting user is required"))
		return
	}
	documents, err := h.service.PendingForUser(ctx, orgID, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"documents": documents,
		"count":     len(documents),
	})
}

// HandleGet handles GET /documents/{documentID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), orgID, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleContent handles GET /documents/{documentID}/content: streams the
// current PDF revision.
func (h *Handler) HandleContent(w http.ResponseWriter, r *http.Request) {
	orgID, _, ok := scope(r, w)
	if !ok {
		return
	}
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	data, doc, err := h.service.Content(r.Context(), orgID, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Name+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleSign handles POST /documents/{documentID}/sign. The signer is the
// acting user; the optional custom position overrides the template box for
// this signature only.
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "acting user is required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[SignRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	doc, err := h.service.Sign(ctx, orgID, documentID, userID, req.CustomPosition, actor)
	if err != nil {
		h.logger.WarnContext(ctx, "sign rejected",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", documentID, "user_id", userID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleCancel handles POST /documents/{documentID}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CancelRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.service.Cancel(ctx, orgID, documentID, req.Reason, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleAssignSigner handles POST /documents/{documentID}/signers.
func (h *Handler) HandleAssignSigner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, actor, ok := scope(r, w)
	if !ok {
		return
	}
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	signatoryID, err := id.ParseSignatoryID(req.SignatoryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.AssignSigner(ctx, orgID, documentID, signatoryID, userID, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}
