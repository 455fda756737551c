package ingest

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/internal/calendar"
	"finset/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testInterfaces() []config.Interface {
	return []config.Interface{
		{ID: "stock_zh_a_hist", SourceDomain: "eastmoney", Freq: "D", Scope: ScopePerTickerHistory, BootstrapSource: "price_{ticker}.csv"},
		{ID: "tool_trade_date_hist_sina", SourceDomain: "sina", Freq: "static", BootstrapSource: "trading_calendar.csv"},
		{ID: "stock_gpzy_pledge_ratio_em", SourceDomain: "eastmoney", Freq: "W", Scope: ScopeMarketWideSingleDay},
		{ID: "stock_sse_deal_daily", SourceDomain: "sse", Freq: "D", Scope: ScopeMarketWideSingleDay, HyphenDate: true},
	}
}

func newTestPlanner(t *testing.T) (*Planner, *config.Config, *config.Paths) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Interfaces = testInterfaces()
	paths, err := config.NewPaths(cfg)
	require.NoError(t, err)
	return NewPlanner(cfg, paths, discardLogger()), cfg, paths
}

func TestTaskID(t *testing.T) {
	a := TaskID("stock_gpzy_pledge_ratio_em", map[string]string{"date": "20240906", "page": "1"})
	b := TaskID("stock_gpzy_pledge_ratio_em", map[string]string{"page": "1", "date": "20240906"})
	assert.Equal(t, a, b, "param order does not matter")
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, TaskID("stock_gpzy_pledge_ratio_em", map[string]string{"date": "20240907", "page": "1"}))
	assert.NotEqual(t, a, TaskID("other", map[string]string{"date": "20240906", "page": "1"}))
}

func TestCanonicalParams(t *testing.T) {
	assert.Equal(t, "{}", canonicalParams(nil))
	assert.Equal(t, `{"a": "1", "date": "20240906"}`, canonicalParams(map[string]string{"date": "20240906", "a": "1"}))
}

func TestReplayPlan(t *testing.T) {
	p, _, paths := newTestPlanner(t)

	tasks := p.ReplayPlan([]string{"600519.SH", "601318.SH"})
	require.Len(t, tasks, 3)

	assert.Equal(t, "stock_zh_a_hist", tasks[0].InterfaceID)
	assert.Equal(t, "600519.SH", tasks[0].Ticker)
	assert.Equal(t, paths.BootstrapPath("price_600519SH.csv"), tasks[0].ReplayPath)
	assert.NotEqual(t, tasks[0].TaskID, tasks[1].TaskID, "each ticker gets its own task")
	assert.NotEqual(t, tasks[0].OutputPath, tasks[1].OutputPath)

	cal := tasks[2]
	assert.Equal(t, "tool_trade_date_hist_sina", cal.InterfaceID)
	assert.Empty(t, cal.Ticker)
	assert.Equal(t, filepath.Join(paths.RawDir, "source_domain=sina", "interface=tool_trade_date_hist_sina",
		"date=static", "part-"+cal.TaskID[:10]+".csv"), cal.OutputPath)
}

func TestOnlinePlan(t *testing.T) {
	p, cfg, paths := newTestPlanner(t)

	tasks, err := p.OnlinePlan()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "stock_gpzy_pledge_ratio_em", tasks[0].InterfaceID)
	assert.Equal(t, "eastmoney", tasks[0].SourceDomain)
	assert.Equal(t, TaskID("stock_gpzy_pledge_ratio_em", map[string]string{"date": "20240906"}), tasks[0].TaskID)
	assert.True(t, strings.HasPrefix(tasks[0].OutputPath,
		filepath.Join(paths.RawDir, "source_domain=eastmoney", "interface=stock_gpzy_pledge_ratio_em", "date=20240906")))

	cfg.Online.ProbeInterface = "missing"
	_, err = p.OnlinePlan()
	assert.ErrorIs(t, err, ErrUnknownInterface)
}

func TestFullPlan(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	cal, err := calendar.Build([]string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, "", "")
	require.NoError(t, err)

	tasks, err := p.FullPlan(cal, []string{"600519.SH"}, "2024-01-03", "2024-01-05")
	require.NoError(t, err)

	byIface := map[string][]string{}
	for _, task := range tasks {
		if d := task.Params["date"]; d != "" {
			byIface[task.InterfaceID] = append(byIface[task.InterfaceID], d)
		}
	}
	assert.Equal(t, []string{"20240103", "20240104", "20240105"}, byIface["stock_gpzy_pledge_ratio_em"])
	assert.Equal(t, []string{"2024-01-03", "2024-01-04", "2024-01-05"}, byIface["stock_sse_deal_daily"])

	var history []map[string]string
	for _, task := range tasks {
		if task.InterfaceID == "stock_zh_a_hist" {
			history = append(history, task.Params)
			assert.Equal(t, "600519.SH", task.Ticker)
		}
	}
	assert.Equal(t, []map[string]string{{"symbol": "600519", "start_date": "20240103", "end_date": "20240105"}}, history)

	for _, task := range tasks {
		if task.InterfaceID == "stock_sse_deal_daily" {
			assert.Contains(t, task.OutputPath, "date=20240103", "partitions strip hyphens")
			break
		}
	}

	_, err = p.FullPlan(cal, nil, "2025-01-01", "2025-01-31")
	assert.ErrorIs(t, err, calendar.ErrCalendarUnavailable)
}

func TestManifestRoundTrip(t *testing.T) {
	p, _, paths := newTestPlanner(t)
	tasks := p.ReplayPlan([]string{"600519.SH"})

	path, err := p.SaveManifest(ModeReplay, tasks)
	require.NoError(t, err)
	assert.Equal(t, paths.ManifestPath(ModeReplay), path)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, ModeReplay, m.Mode)
	assert.Equal(t, tasks, m.Tasks)
}

func TestSmokeDates(t *testing.T) {
	dir := t.TempDir()
	fallback := []string{"2024-12-30", "2025-08-15"}

	assert.Equal(t, fallback, SmokeDates(filepath.Join(dir, "missing.txt"), fallback, discardLogger()))

	path := filepath.Join(dir, "smoke_dates.txt")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-02\n\n 2024-01-31 \n"), 0644))
	assert.Equal(t, []string{"2024-01-02", "2024-01-31"}, SmokeDates(path, fallback, discardLogger()))
}
