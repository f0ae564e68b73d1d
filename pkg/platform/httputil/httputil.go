// Package httputil holds the JSON response and decoding helpers shared by all
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/platform/sentinel"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError maps a domain error to its HTTP status. Internal errors hide
// their description; everything else is safe to echo to the caller.
func WriteError(w http.ResponseWriter, err error) {
	code := codeOf(err)
	status := statusFor(code)
	body := errorBody{Error: string(code)}
	if status < http.StatusInternalServerError {
		body.Description = messageOf(err)
	}
	WriteJSON(w, status, body)
}

func codeOf(err error) dErrors.Code {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.CodeNotFound
	case errors.Is(err, sentinel.ErrImmutable):
		return dErrors.CodeImmutable
	case errors.Is(err, sentinel.ErrVersionConflict), errors.Is(err, sentinel.ErrConflict):
		return dErrors.CodeConflict
	}
	return dErrors.CodeOf(err)
}

func messageOf(err error) string {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConflict, dErrors.CodeInvalidState, dErrors.CodeImmutable:
		return http.StatusConflict
	case dErrors.CodeMissingVariables:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes the JSON body into T and runs its Validate hook
// when it has one. On failure it writes the error response and returns
// ok=false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, log *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.WarnContext(ctx, "request decode failed", "request_id", requestID, "error", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON"))
		var zero T
		return zero, false
	}
	if v, ok := any(&req).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			var zero T
			return zero, false
		}
	}
	return req, true
}
