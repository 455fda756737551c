package audit

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	report := newTestAuditor(io.Discard).Audit(context.Background(), mergedFixture())

	written, err := WriteReport(dir, "smoke", report)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "stats_summary_smoke.csv"), written.SummaryCSV)

	summary, err := files.ReadTable(written.SummaryCSV, files.ReadOptions{Comma: ','})
	require.NoError(t, err)
	assert.Equal(t, summaryHeaders, summary.Columns)
	assert.Equal(t, len(report.Columns), summary.Len())
	assert.Equal(t, "25.00", summary.Value(2, "missing_percentage"))

	na, err := os.ReadFile(written.LabelNACSV)
	require.NoError(t, err)
	assert.Equal(t, "label_horizon,na_label_count\nlabel_na_1d,1\nlabel_na_5d,3\n", string(na))

	loaded, err := LoadReport(written.JSON)
	require.NoError(t, err)
	assert.Equal(t, report.Rows, loaded.Rows)
	assert.Equal(t, 1, loaded.TotalViolations())

	wb, err := excelize.OpenFile(written.Workbook)
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{SheetSummary, SheetLookahead, SheetLabelNA}, wb.GetSheetList())

	rows, err := wb.GetRows(SheetLookahead)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"column", "violations"},
		{"effective_date_px", "0"},
		{"effective_date_pledge", "1"},
	}, rows)
}

func TestWriteReport_NonFiniteCells(t *testing.T) {
	dir := t.TempDir()
	merged := domain.NewTable("ticker", "date", "feat_ratio_px", "effective_date_px")
	merged.AppendRow("600519.SH", "2024-01-02", "1.5", "2024-01-02")
	merged.AppendRow("600519.SH", "2024-01-03", "inf", "2024-01-04")
	merged.AppendRow("600519.SH", "2024-01-04", "-Inf", "2024-01-04")

	report := newTestAuditor(io.Discard).Audit(context.Background(), merged)

	written, err := WriteReport(dir, "inf", report)
	require.NoError(t, err)

	loaded, err := LoadReport(written.JSON)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.TotalViolations())
	for _, c := range loaded.Columns {
		if c.Column == "feat_ratio_px" {
			assert.Nil(t, c.Stats, "non-finite cells make the column non-numeric")
		}
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	features := domain.NewTable("ticker", "date", "feat_close_px", "effective_date_px")
	features.AppendRow("600519.SH", "2024-01-02", "100", "2024-01-02")
	features.AppendRow("600519.SH", "2024-01-03", "102", "2024-01-04")
	labels := domain.NewTable("ticker", "date", "r_1d", "label_na_1d")
	labels.AppendRow("600519.SH", "2024-01-02", "200", "0")
	labels.AppendRow("600519.SH", "2024-01-03", "", "1")

	fp := filepath.Join(dir, "features.csv")
	lp := filepath.Join(dir, "labels.csv")
	require.NoError(t, files.WriteTableAtomic(fp, features))
	require.NoError(t, files.WriteTableAtomic(lp, labels))

	res, err := newTestAuditor(io.Discard).Run(context.Background(), Request{
		FeaturesPath: fp,
		LabelsPath:   lp,
		StatsDir:     filepath.Join(dir, "stats"),
		Suffix:       "fixture",
	})
	require.NoError(t, err, "violations are reported, not returned")
	assert.Equal(t, 1, res.Report.TotalViolations())
	assert.FileExists(t, res.Files.Workbook)

	_, err = newTestAuditor(io.Discard).Run(context.Background(), Request{
		FeaturesPath: filepath.Join(dir, "missing.csv"),
		LabelsPath:   lp,
		StatsDir:     dir,
		Suffix:       "x",
	})
	assert.Error(t, err)
}
