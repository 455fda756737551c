package exporter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/pkg/contracts/domain"
)

func TestCSVWriter_ResolvePath(t *testing.T) {
	paths := testPaths(t)
	w := NewCSVWriter(paths)

	assert.Equal(t, filepath.Join(paths.StatsDir, "stats_summary_smoke.csv"), w.resolvePath("stats/stats_summary_smoke.csv"))
	assert.Equal(t, filepath.Join(paths.DataDir, "silver", "interface=x", "data.csv"), w.resolvePath("silver/interface=x/data.csv"))
	assert.Equal(t, filepath.Join(paths.ExportsDir, "misc.csv"), w.resolvePath("misc.csv"))
	assert.Equal(t, "/abs/file.csv", w.resolvePath("/abs/file.csv"))
}

func TestCSVWriter_WriteAndAppend(t *testing.T) {
	paths := testPaths(t)
	w := NewCSVWriter(paths)

	tbl := domain.NewTable("column", "missing_count")
	tbl.AppendRow("ticker", "0")
	require.NoError(t, w.WriteTable("stats/summary.csv", tbl))
	require.NoError(t, w.WriteCSV("stats/summary.csv", WriteOptions{Records: [][]string{{"date", "0"}}, Append: true}))

	content, err := os.ReadFile(filepath.Join(paths.StatsDir, "summary.csv"))
	require.NoError(t, err)
	assert.Equal(t, "column,missing_count\nticker,0\ndate,0\n", string(content))
}

func TestCSVWriter_BOM(t *testing.T) {
	w := NewCSVWriter(testPaths(t))
	path := filepath.Join(t.TempDir(), "bom.csv")
	require.NoError(t, w.WriteCSV(path, WriteOptions{Headers: []string{"a"}, Records: [][]string{{"1"}}, BOMPrefix: true}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, utf8BOM...), []byte("a\n1\n")...), content)
}

func TestStreamWriter(t *testing.T) {
	w := NewCSVWriter(testPaths(t))
	path := filepath.Join(t.TempDir(), "stream", "out.csv")

	sw, err := w.CreateStreamWriter(path, []string{"ticker", "date"})
	require.NoError(t, err)
	require.NoError(t, sw.WriteRecord([]string{"600519.SH", "2024-01-02"}))
	require.NoError(t, sw.WriteRecord([]string{"600519.SH", "2024-01-03"}))
	assert.Equal(t, 2, sw.Rows())
	require.NoError(t, sw.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ticker,date\n600519.SH,2024-01-02\n600519.SH,2024-01-03\n", string(content))
}
