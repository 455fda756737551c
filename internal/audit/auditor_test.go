package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/pkg/contracts/domain"
)

func newTestAuditor(w io.Writer) *Auditor {
	return NewAuditor(slog.New(slog.NewJSONHandler(w, nil)))
}

func mergedFixture() domain.Table {
	t := domain.NewTable("ticker", "date", "feat_close_px", "effective_date_px", "effective_date_pledge", "r_1d", "label_na_1d", "r_5d", "label_na_5d")
	t.AppendRow("600519.SH", "2024-01-02", "100", "2024-01-02", "", "200", "0", "", "1")
	t.AppendRow("600519.SH", "2024-01-03", "102", "2024-01-03", "2024-01-05", "-200", "0", "", "1")
	t.AppendRow("600519.SH", "2024-01-04", "", "2024-01-04", "2024-01-02", "", "1", "", "1")
	t.AppendRow("601318.SH", "2024-01-02", "40", "2024-01-02", "2024-01-02", "50", "0", "10", "0")
	return t
}

func lookaheadFor(report domain.AuditReport, col string) (domain.LookaheadResult, bool) {
	for _, l := range report.Lookahead {
		if l.Column == col {
			return l, true
		}
	}
	return domain.LookaheadResult{}, false
}

func summaryFor(report domain.AuditReport, col string) (domain.ColumnSummary, bool) {
	for _, c := range report.Columns {
		if c.Column == col {
			return c, true
		}
	}
	return domain.ColumnSummary{}, false
}

func TestAudit_FlagsSingleLookaheadViolation(t *testing.T) {
	var logs bytes.Buffer
	report := newTestAuditor(&logs).Audit(context.Background(), mergedFixture())

	assert.Equal(t, 4, report.Rows)
	require.Len(t, report.Lookahead, 2)

	pledge, ok := lookaheadFor(report, "effective_date_pledge")
	require.True(t, ok)
	assert.Equal(t, 1, pledge.Violations)

	px, ok := lookaheadFor(report, "effective_date_px")
	require.True(t, ok)
	assert.Zero(t, px.Violations)

	assert.Equal(t, 1, report.TotalViolations())
	assert.False(t, report.Passed())

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		entry = map[string]any{}
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "lookahead_violation" {
			break
		}
	}
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "effective_date_pledge", entry["column"])
	assert.EqualValues(t, 1, entry["violations"])
	assert.Equal(t, "2024-01-03", entry["date"])
}

func TestAudit_CleanTablePasses(t *testing.T) {
	tbl := domain.NewTable("ticker", "date", "effective_date_px")
	tbl.AppendRow("600519.SH", "2024-01-02", "2024-01-02")
	tbl.AppendRow("600519.SH", "2024-01-03", "20240102")

	report := newTestAuditor(io.Discard).Audit(context.Background(), tbl)
	assert.True(t, report.Passed())
}

func TestAudit_MissingAndStats(t *testing.T) {
	report := newTestAuditor(io.Discard).Audit(context.Background(), mergedFixture())

	closeCol, ok := summaryFor(report, "feat_close_px")
	require.True(t, ok)
	assert.Equal(t, 1, closeCol.MissingCount)
	assert.Equal(t, 25.0, closeCol.MissingPercent)
	require.NotNil(t, closeCol.Stats)
	assert.Equal(t, 3, closeCol.Stats.Count)
	assert.InDelta(t, 80.6667, closeCol.Stats.Mean, 1e-4)
	assert.Equal(t, 40.0, closeCol.Stats.Min)
	assert.Equal(t, 70.0, closeCol.Stats.P25)
	assert.Equal(t, 100.0, closeCol.Stats.P50)
	assert.Equal(t, 101.0, closeCol.Stats.P75)
	assert.Equal(t, 102.0, closeCol.Stats.Max)

	ticker, ok := summaryFor(report, "ticker")
	require.True(t, ok)
	assert.Nil(t, ticker.Stats, "non-numeric columns have no stats")

	pledge, ok := summaryFor(report, "effective_date_pledge")
	require.True(t, ok)
	assert.Equal(t, 1, pledge.MissingCount)

	assert.Equal(t, []domain.LabelNACount{
		{Horizon: "label_na_1d", Count: 1},
		{Horizon: "label_na_5d", Count: 3},
	}, report.LabelNA)
}

func TestMerge(t *testing.T) {
	features := domain.NewTable("ticker", "date", "feat_x")
	features.AppendRow("A", "2024-01-02", "1")
	features.AppendRow("B", "2024-01-02", "2")
	labels := domain.NewTable("ticker", "date", "r_1d")
	labels.AppendRow("B", "2024-01-02", "5")

	merged, err := Merge(features, labels)
	require.NoError(t, err)
	assert.Equal(t, []string{"ticker", "date", "feat_x", "r_1d"}, merged.Columns)
	assert.Equal(t, [][]string{{"B", "2024-01-02", "2", "5"}}, merged.Rows)

	_, err = Merge(domain.NewTable("ticker"), labels)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		want    domain.DescribeStats
		wantStd float64
	}{
		{
			name:   "single value",
			values: []float64{5},
			want:   domain.DescribeStats{Count: 1, Mean: 5, Min: 5, P25: 5, P50: 5, P75: 5, Max: 5},
		},
		{
			name:    "four values",
			values:  []float64{4, 1, 3, 2},
			want:    domain.DescribeStats{Count: 4, Mean: 2.5, Min: 1, P25: 1.75, P50: 2.5, P75: 3.25, Max: 4},
			wantStd: 1.290994,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.values)
			assert.InDelta(t, tt.wantStd, got.Std, 1e-6)
			got.Std = 0
			assert.Equal(t, tt.want, got)
		})
	}
}
