package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOTel_TracingExportsSpans(t *testing.T) {
	var spans bytes.Buffer
	cfg := DefaultOTelConfig()
	cfg.EnableTracing = true
	cfg.TraceOutput = &spans

	providers, err := InitializeOTel(cfg, discardLogger())
	require.NoError(t, err)

	ctx, span := providers.StartSpan(context.Background(), "stage.assemble", attribute.String("stage.id", "assemble"))
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	SetSpanAttributes(ctx, map[string]interface{}{"rows": 42, "suffix": "smoke"})
	RecordError(ctx, errors.New("boom"))
	span.End()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, providers.Shutdown(shutdownCtx))

	assert.Contains(t, spans.String(), "stage.assemble")
	assert.Contains(t, spans.String(), "boom")
}

func TestOTel_TracingDisabledIsNoop(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), discardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	assert.Nil(t, providers.TracerProvider)
	ctx, span := providers.StartSpan(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.IsRecording())
	RecordError(ctx, errors.New("ignored"))
}

func TestOTel_StageMetricsOnSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultOTelConfig()
	cfg.Registerer = reg

	providers, err := InitializeOTel(cfg, discardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	providers.StageMetrics.RecordStage(context.Background(), "run-1", "label", 250*time.Millisecond, nil)
	providers.StageMetrics.RecordStage(context.Background(), "run-1", "audit", time.Second, errors.New("x"))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["pipeline_stage_runs_total"])
	assert.True(t, names["pipeline_stage_errors_total"])
}

func TestMetrics_TextfileAndHandler(t *testing.T) {
	m := NewMetrics("finset")
	m.TasksFetched.WithLabelValues("stock_zh_a_hist", "success").Add(2)
	m.LookaheadViolations.WithLabelValues("effective_date_pledge").Set(1)
	m.GoldRows.Set(6)
	m.StageDuration.WithLabelValues("assemble", "success").Observe(0.5)

	path := filepath.Join(t.TempDir(), "stats", "metrics.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `finset_fetch_tasks_total{interface="stock_zh_a_hist",status="success"} 2`)
	assert.Contains(t, string(content), `finset_audit_lookahead_violations{column="effective_date_pledge"} 1`)
	assert.Contains(t, string(content), "finset_assemble_gold_rows 6")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "finset_pipeline_stage_duration_seconds_bucket")
}
