package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/internal/audit"
	"finset/internal/config"
	apierrors "finset/internal/errors"
	"finset/internal/infrastructure"
	"finset/internal/operations"
	"finset/pkg/contracts/domain"
)

type fixture struct {
	paths  *config.Paths
	router chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	paths, err := config.NewPaths(cfg)
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errorHandler := apierrors.NewErrorHandler(logger, false)
	metrics := infrastructure.NewMetrics("test")

	r := chi.NewRouter()
	r.Get("/healthz", NewHealthHandler(paths, logger).HealthCheck)
	r.Method(http.MethodGet, "/metrics", NewMetricsHandler(metrics))
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/runs", NewRunsHandler(paths, errorHandler, logger).Routes())
		r.Mount("/audit", NewAuditHandler(paths, errorHandler, logger).Routes())
	})
	return &fixture{paths: paths, router: r}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *fixture) saveRun(t *testing.T, started time.Time, status string) string {
	t.Helper()
	id := infrastructure.NewRunID()
	m := operations.NewPipelineManifest(id, operations.ModeReplay, "2024-01-02", "2024-01-05", "smoke")
	m.StartTime = started
	m.AddFiles(operations.DataTypeGoldFeatures, "assemble", f.paths.GoldFeaturesFile)
	m.Status = status
	require.NoError(t, m.SaveToFile(f.paths.RunManifestPath(id)))
	return id
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, f.paths.DataDir, body.DataDir)
	assert.NotEmpty(t, body.Version.Version)

	require.NoError(t, os.RemoveAll(f.paths.DataDir))
	w = f.get(t, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode[HealthResponse](t, w).Status)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_assemble_gold_rows")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)

	body := decode[RunsResponse](t, f.get(t, "/api/v1/runs"))
	assert.Zero(t, body.Total)
	assert.NotNil(t, body.Runs)

	older := f.saveRun(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "completed")
	newer := f.saveRun(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "failed")

	body = decode[RunsResponse](t, f.get(t, "/api/v1/runs"))
	require.Equal(t, 2, body.Total)
	assert.Equal(t, newer, body.Runs[0].ID)
	assert.Equal(t, "failed", body.Runs[0].Status)
	assert.Equal(t, older, body.Runs[1].ID)
	assert.Equal(t, "2024-01-01T00:00:00Z", body.Runs[1].StartTime)
	assert.Equal(t, []string{operations.DataTypeGoldFeatures}, body.Runs[1].DataTypes)
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	id := f.saveRun(t, time.Now(), "completed")

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"existing run", "/api/v1/runs/" + id, http.StatusOK, ""},
		{"unknown run", "/api/v1/runs/" + infrastructure.NewRunID(), http.StatusNotFound, "RUN_NOT_FOUND"},
		{"not a ulid", "/api/v1/runs/latest", http.StatusBadRequest, "INVALID_PARAMETER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(t, tt.path)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decode[apierrors.ErrorResponse](t, w).Error.ErrorCode)
				return
			}
			m := decode[operations.PipelineManifest](t, w)
			assert.Equal(t, id, m.ID)
			assert.Equal(t, "smoke", m.Suffix)
		})
	}
}

func TestAuditReports(t *testing.T) {
	f := newFixture(t)

	body := decode[AuditListResponse](t, f.get(t, "/api/v1/audit"))
	assert.Empty(t, body.Suffixes)

	report := domain.AuditReport{
		Rows:        8,
		Lookahead:   []domain.LookaheadResult{{Column: "feat_close_prices", Violations: 0}},
		GeneratedAt: time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
	}
	_, err := audit.WriteReport(f.paths.StatsDir, "v2", report)
	require.NoError(t, err)
	_, err = audit.WriteReport(f.paths.StatsDir, "v1", report)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(f.paths.StatsDir, "other.json"), []byte("{}"), 0o644))

	body = decode[AuditListResponse](t, f.get(t, "/api/v1/audit"))
	assert.Equal(t, []string{"v1", "v2"}, body.Suffixes)

	w := f.get(t, "/api/v1/audit/v1")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[domain.AuditReport](t, w)
	assert.Equal(t, 8, got.Rows)
	require.Len(t, got.Lookahead, 1)
	assert.Equal(t, "feat_close_prices", got.Lookahead[0].Column)

	w = f.get(t, "/api/v1/audit/v9")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REPORT_NOT_FOUND", decode[apierrors.ErrorResponse](t, w).Error.ErrorCode)

	w = f.get(t, "/api/v1/audit/..")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
