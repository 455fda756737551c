package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSlogHandler(t *testing.T) {
	logger, logs := NewTestLogger(t)

	stage := logger.With(slog.String("stage", "assemble"))
	stage.Warn("source_join_failed", slog.String("interface_id", "nokey"))
	logger.WithGroup("fetch").Info("task_done", slog.Int("rows", 3))

	records := logs.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "assemble", records[0].Attrs["stage"])
	assert.Equal(t, int64(3), records[1].Attrs["fetch.rows"])

	AssertLogged(t, logs, slog.LevelWarn, "source_join_failed")
	AssertLogAttr(t, logs, "source_join_failed", "interface_id", "nokey")
	AssertNoErrors(t, logs)
	assert.Empty(t, logs.Find("missing"))
}
