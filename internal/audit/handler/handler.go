// Package handler exposes the audit query surface. There is no write endpoint:
// audit events are only emitted by services as side effects of domain
// operations.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/platform/httputil"
	pstrings "vellum/pkg/platform/strings"
	"vellum/pkg/requestcontext"

	"vellum/internal/audit"
)

type Handler struct {
	service *audit.Service
	logger  *slog.Logger
}

func New(service *audit.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/events", h.HandleQuery)
	r.Get("/audit/verify", h.HandleVerify)
}

// HandleQuery handles GET /audit/events. Results are scoped to the request's
// organization and ordered newest-first.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := requestcontext.OrgID(ctx)
	if orgID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "organization scope is required"))
		return
	}

	query, err := parseQuery(r, orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.service.Query(ctx, query)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// HandleVerify handles GET /audit/verify: walks the organization's hash chain
// and reports the first broken link, if any.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := requestcontext.OrgID(ctx)
	if orgID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "organization scope is required"))
		return
	}

	broken, err := h.service.Verify(ctx, orgID)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit verification failed",
			"request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	resp := map[string]any{"intact": broken == nil}
	if broken != nil {
		resp["broken_event_id"] = broken
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseQuery(r *http.Request, orgID id.OrgID) (audit.Query, error) {
	q := audit.Query{OrgID: orgID}
	params := r.URL.Query()

	for _, t := range splitParam(params.Get("type")) {
		eventType := audit.EventType(t)
		if !eventType.Valid() {
			return audit.Query{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown event type %q", t)
		}
		q.Types = append(q.Types, eventType)
	}
	q.Actions = splitParam(params.Get("action"))
	if raw := params.Get("actor_id"); raw != "" {
		actorID, err := id.ParseUserID(raw)
		if err != nil {
			return audit.Query{}, err
		}
		q.ActorID = actorID
	}
	q.TargetType = params.Get("target_type")
	q.TargetID = params.Get("target_id")
	q.Tag = params.Get("tag")

	if raw := params.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Query{}, dErrors.New(dErrors.CodeBadRequest, "from must be RFC 3339")
		}
		q.From = from
	}
	if raw := params.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Query{}, dErrors.New(dErrors.CodeBadRequest, "to must be RFC 3339")
		}
		q.To = to
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return audit.Query{}, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	return q, nil
}

// splitParam turns a comma-separated query parameter into a clean value list.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(raw, ","))
}
