package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	err := NotFoundError("run 01hx")
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, "run 01hx not found", err.Error())
	assert.Equal(t, "run 01hx", err.Details)

	bad := InvalidParameter("suffix", "../x")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	assert.Equal(t, `invalid suffix "../x"`, bad.Message)
}

func TestErrPanic(t *testing.T) {
	err := ErrPanic("boom")
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	require.IsType(t, PanicRecovery{}, err.Details)
	assert.Equal(t, "boom", err.Details.(PanicRecovery).Message)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, ErrReportNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "REPORT_NOT_FOUND", body.Error.ErrorCode)
}

func TestMethodNotAllowed(t *testing.T) {
	err := MethodNotAllowed(http.MethodDelete)
	assert.Equal(t, http.StatusMethodNotAllowed, err.StatusCode)
	assert.Equal(t, "Method DELETE is not allowed for this endpoint", err.Message)
}
