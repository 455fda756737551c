package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/internal/checkpoint"
	"finset/internal/config"
	apierrors "finset/internal/errors"
	customMiddleware "finset/internal/middleware"
	"finset/internal/pipeline"
)

func newTestApplication(t *testing.T) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Server.Port = 0

	p, err := pipeline.New(cfg, pipeline.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  checkpoint.NewMemoryStore(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	a, err := NewApplication(p)
	require.NoError(t, err)
	return a
}

func TestNewApplicationRequiresPipeline(t *testing.T) {
	_, err := NewApplication(nil)
	assert.Error(t, err)
}

func TestRouter(t *testing.T) {
	a := newTestApplication(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/healthz", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"runs", http.MethodGet, "/api/v1/runs", http.StatusOK},
		{"audit list", http.MethodGet, "/api/v1/audit", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v2/runs", http.StatusNotFound},
		{"wrong method", http.MethodPost, "/healthz", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			a.Router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(customMiddleware.RequestIDHeader))
		})
	}
}

func TestRouterErrorsCarryRequestID(t *testing.T) {
	a := newTestApplication(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/runs/not-a-run", nil)
	r.Header.Set(customMiddleware.RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_PARAMETER", body.Error.ErrorCode)
	assert.NotEmpty(t, body.TraceID)
}

func TestStartStop(t *testing.T) {
	a := newTestApplication(t)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	resp, err := http.Get("http://" + a.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.Stop(ctx))
	_, err = http.Get("http://" + a.Addr() + "/healthz")
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newTestApplication(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
