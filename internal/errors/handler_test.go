package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/internal/infrastructure"
)

func newTestHandler(t *testing.T, includeStack bool) (*ErrorHandler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewErrorHandler(logger, includeStack), &buf
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"api error", ErrRunNotFound, "RUN_NOT_FOUND"},
		{"wrapped api error", fmt.Errorf("lookup: %w", InvalidParameter("id", "x")), "INVALID_PARAMETER"},
		{"missing file", fmt.Errorf("open: %w", os.ErrNotExist), "NOT_FOUND"},
		{"deadline", context.DeadlineExceeded, "TIMEOUT"},
		{"anything else", fmt.Errorf("disk on fire"), "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, ToAPIError(tt.err).ErrorCode)
		})
	}
}

func TestErrorHandler_HandleError(t *testing.T) {
	h, logs := newTestHandler(t, false)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/runs/x", nil)
	r = r.WithContext(infrastructure.WithTraceID(r.Context(), "trace-1"))
	w := httptest.NewRecorder()

	h.HandleError(w, r, fmt.Errorf("load: %w", ErrRunNotFound))

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeResponse(t, w)
	assert.False(t, body.Success)
	assert.Equal(t, "RUN_NOT_FOUND", body.Error.ErrorCode)
	assert.Equal(t, "trace-1", body.TraceID)
	assert.Contains(t, logs.String(), `"level":"WARN"`)
}

func TestErrorHandler_NilError(t *testing.T) {
	h, logs := newTestHandler(t, false)
	w := httptest.NewRecorder()

	h.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Zero(t, w.Body.Len())
	assert.Zero(t, logs.Len())
}

func TestErrorHandler_StackOnServerErrors(t *testing.T) {
	h, logs := newTestHandler(t, true)

	w := httptest.NewRecorder()
	h.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"stack"`)
	assert.Contains(t, logs.String(), `"level":"ERROR"`)

	w = httptest.NewRecorder()
	h.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), ErrNotFound)
	assert.NotContains(t, w.Body.String(), `"stack"`)

	assert.Nil(t, ErrInternalServer.Details, "shared errors stay untouched")
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	h, logs := newTestHandler(t, false)
	w := httptest.NewRecorder()

	h.HandlePanic(w, httptest.NewRequest(http.MethodGet, "/boom", nil), "kaput")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeResponse(t, w)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.ErrorCode)
	assert.Nil(t, body.Error.Details)
	assert.Contains(t, logs.String(), "kaput")
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, false)

	w := httptest.NewRecorder()
	h.NotFound(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "/nope not found", decodeResponse(t, w).Error.Message)

	w = httptest.NewRecorder()
	h.MethodNotAllowed(w, httptest.NewRequest(http.MethodDelete, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
