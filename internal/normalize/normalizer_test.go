package normalize

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/internal/calendar"
	"finset/internal/config"
	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

func testCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.Build([]string{"2024-09-02", "2024-09-03", "2024-09-04", "2024-09-05", "2024-09-06", "2024-09-09"}, "", "")
	require.NoError(t, err)
	return cal
}

func TestNormalize_RenamesAndSameDay(t *testing.T) {
	iface := config.Interface{
		ID:         "stock_zh_a_hist",
		AvailRule:  config.AvailSameDay,
		ColumnsMap: map[string]string{"日期": "date", "收盘": "close"},
	}
	raw := domain.NewTable("日期", "收盘")
	raw.AppendRow("20240902", "1700.5")
	raw.AppendRow("bad-date", "1701")

	got, err := Normalize(iface, domain.FetchTask{Ticker: "600519.SH"}, raw, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"close", "effective_date", "ticker"}, got.Columns)
	assert.Equal(t, [][]string{
		{"1700.5", "2024-09-02", "600519.SH"},
		{"1701", "", "600519.SH"},
	}, got.Rows)
	assert.Equal(t, []string{"日期", "收盘"}, raw.Columns, "input is not mutated")
}

func TestNormalize_AvailabilityLag(t *testing.T) {
	cal := testCalendar(t)
	raw := domain.NewTable("ticker", "date", "pledge_ratio")
	raw.AppendRow("600519.SH", "2024-09-06", "1.5")
	raw.AppendRow("600519.SH", "2024-09-07", "1.6")
	raw.AppendRow("600519.SH", "2024-09-09", "1.7")

	next, err := Normalize(config.Interface{ID: "pledge", AvailRule: config.AvailNextTradingDay}, domain.FetchTask{}, raw, cal)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-09-09", "2024-09-09", ""}, next.Column("effective_date"))
	assert.Equal(t, []string{"ticker", "pledge_ratio", "effective_date"}, next.Columns, "existing ticker kept")

	lag2, err := Normalize(config.Interface{ID: "pledge", AvailRule: "lag:2"}, domain.FetchTask{}, raw, cal)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", ""}, lag2.Column("effective_date"))

	_, err = Normalize(config.Interface{ID: "pledge", AvailRule: config.AvailNextTradingDay}, domain.FetchTask{}, raw, nil)
	assert.Error(t, err, "lagged rules need a calendar")
}

func TestNormalize_ReplacesExistingEffectiveDate(t *testing.T) {
	raw := domain.NewTable("date", "effective_date", "v")
	raw.AppendRow("2024-09-02", "stale", "1")

	got, err := Normalize(config.Interface{ID: "x"}, domain.FetchTask{}, raw, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"v", "effective_date"}, got.Columns)
	assert.Equal(t, "2024-09-02", got.Value(0, "effective_date"))
}

func TestEffectiveDate(t *testing.T) {
	cal := testCalendar(t)
	assert.Equal(t, "2024-09-07", EffectiveDate("20240907", config.AvailSameDay, 0, cal))
	assert.Equal(t, "2024-09-04", EffectiveDate("2024-09-02", config.AvailLag, 2, cal))
	assert.Equal(t, "", EffectiveDate("2024-09-09", config.AvailNextTradingDay, 1, cal))
	assert.Equal(t, "", EffectiveDate("", config.AvailSameDay, 0, cal))
}

func TestConsolidate(t *testing.T) {
	a := domain.NewTable("ticker", "close")
	a.AppendRow("600519.SH", "1")
	b := domain.NewTable("close", "volume", "ticker")
	b.AppendRow("2", "10", "601318.SH")

	got := Consolidate([]domain.Table{a, b})
	assert.Equal(t, []string{"ticker", "close", "volume"}, got.Columns)
	assert.Equal(t, [][]string{
		{"600519.SH", "1", ""},
		{"601318.SH", "2", "10"},
	}, got.Rows)
}

func TestProcess(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	paths, err := config.NewPaths(cfg)
	require.NoError(t, err)

	interfaces := []config.Interface{
		{ID: "stock_zh_a_hist", ColumnsMap: map[string]string{"日期": "date"}},
		{ID: "pledge", AvailRule: config.AvailNextTradingDay},
	}
	n := NewNormalizer(interfaces, paths, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	write := func(name string, tbl domain.Table) string {
		p := filepath.Join(paths.RawDir, name)
		require.NoError(t, files.WriteTableAtomic(p, tbl))
		return p
	}
	px1 := domain.NewTable("日期", "adj_close_hfq")
	px1.AppendRow("2024-09-02", "100")
	px2 := domain.NewTable("日期", "adj_close_hfq")
	px2.AppendRow("2024-09-02", "40")
	pledge := domain.NewTable("ticker", "date", "pledge_ratio")
	pledge.AppendRow("600519.SH", "2024-09-06", "1.5")

	results := []domain.FetchResult{
		{Task: domain.FetchTask{InterfaceID: "stock_zh_a_hist", Ticker: "600519.SH"}, RawPath: write("a.csv", px1)},
		{Task: domain.FetchTask{InterfaceID: "stock_zh_a_hist", Ticker: "601318.SH"}, RawPath: write("b.csv", px2)},
		{Task: domain.FetchTask{InterfaceID: "pledge"}, RawPath: write("c.csv", pledge)},
		{Task: domain.FetchTask{InterfaceID: "unknown"}, RawPath: write("d.csv", pledge)},
	}

	out, err := n.Process(context.Background(), results, testCalendar(t))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"stock_zh_a_hist": paths.SilverPath("stock_zh_a_hist"),
		"pledge":          paths.SilverPath("pledge"),
	}, out)

	silver, err := files.ReadTable(out["stock_zh_a_hist"], files.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"adj_close_hfq", "effective_date", "ticker"}, silver.Columns)
	assert.Equal(t, []string{"600519.SH", "601318.SH"}, silver.Column("ticker"))

	pledgeSilver, err := files.ReadTable(out["pledge"], files.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-09-09", pledgeSilver.Value(0, "effective_date"))

	_, err = n.Process(context.Background(), []domain.FetchResult{
		{Task: domain.FetchTask{InterfaceID: "pledge"}, RawPath: filepath.Join(paths.RawDir, "missing.csv")},
	}, nil)
	assert.Error(t, err)
}
