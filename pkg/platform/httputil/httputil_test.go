package httputil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/platform/sentinel"
	"vellum/pkg/testutil"
)

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusCreated, map[string]string{"name": "contract"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	testutil.AssertJSONContains(t, rr, "name", "contract")
}

func TestWriteJSONNilBody(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", dErrors.New(dErrors.CodeValidation, "name is required"), http.StatusBadRequest, "validation"},
		{"bad request", dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"), http.StatusBadRequest, "bad_request"},
		{"invalid input", dErrors.New(dErrors.CodeInvalidInput, "id is not a valid UUID"), http.StatusBadRequest, "invalid_input"},
		{"not found", dErrors.New(dErrors.CodeNotFound, "template not found"), http.StatusNotFound, "not_found"},
		{"forbidden", dErrors.New(dErrors.CodeForbidden, "user belongs to another organization"), http.StatusForbidden, "forbidden"},
		{"conflict", dErrors.New(dErrors.CodeConflict, "signature already recorded"), http.StatusConflict, "conflict"},
		{"invalid state", dErrors.New(dErrors.CodeInvalidState, "document is cancelled"), http.StatusConflict, "invalid_state"},
		{"immutable", dErrors.New(dErrors.CodeImmutable, "audit events cannot change"), http.StatusConflict, "immutable_record"},
		{"missing variables", dErrors.New(dErrors.CodeMissingVariables, "unresolved template variables"), http.StatusUnprocessableEntity, "missing_variables"},
		{"internal", dErrors.New(dErrors.CodeInternal, "database exploded"), http.StatusInternalServerError, "internal"},
		{"unknown error", fmt.Errorf("plain error"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)
			testutil.AssertStatusAndError(t, rr, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestWriteErrorSentinelMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", sentinel.ErrNotFound, http.StatusNotFound, "not_found"},
		{"immutable", sentinel.ErrImmutable, http.StatusConflict, "immutable_record"},
		{"conflict", sentinel.ErrConflict, http.StatusConflict, "conflict"},
		{"version conflict", sentinel.ErrVersionConflict, http.StatusConflict, "conflict"},
		{"wrapped not found", fmt.Errorf("load template: %w", sentinel.ErrNotFound), http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)
			testutil.AssertStatusAndError(t, rr, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestWriteErrorDescriptions(t *testing.T) {
	t.Run("client errors carry the message", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteError(rr, dErrors.New(dErrors.CodeValidation, "name is required"))
		testutil.AssertJSONContains(t, rr, "error_description", "name is required")
	})

	t.Run("server errors omit the description", func(t *testing.T) {
		rr := httptest.NewRecorder()
		WriteError(rr, dErrors.New(dErrors.CodeInternal, "database exploded"))
		body := testutil.UnmarshalErrorResponse(t, rr)
		_, present := body["error_description"]
		assert.False(t, present)
	})
}

type createRequest struct {
	Name string `json:"name"`
}

func (r *createRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("decodes and validates", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"contract"}`))

		decoded, ok := DecodeAndPrepare[createRequest](rr, req, log, context.Background(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "contract", decoded.Name)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))

		_, ok := DecodeAndPrepare[createRequest](rr, req, log, context.Background(), "req-2")
		require.False(t, ok)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("runs the validate hook", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))

		_, ok := DecodeAndPrepare[createRequest](rr, req, log, context.Background(), "req-3")
		require.False(t, ok)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation")
	})
}
