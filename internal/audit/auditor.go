package audit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"finset/internal/calendar"
	"finset/pkg/contracts/domain"
)

// Auditor produces integrity reports over merged gold tables
type Auditor struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditor creates an auditor logging to logger
func NewAuditor(logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger: logger.With(slog.String("component", "audit")),
		now:    time.Now,
	}
}

// Merge joins the gold features and labels on (ticker, date)
func Merge(features, labels domain.Table) (domain.Table, error) {
	merged, err := features.InnerJoin(labels, domain.ColumnTicker, domain.ColumnDate)
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to merge features and labels: %w", err)
	}
	return merged, nil
}

// Audit checks every effective-date column against the row date and
// summarizes coverage, numeric statistics and label availability.
func (a *Auditor) Audit(ctx context.Context, merged domain.Table) domain.AuditReport {
	report := domain.AuditReport{
		Rows:        merged.Len(),
		GeneratedAt: a.now().UTC(),
	}

	report.Lookahead = a.lookahead(ctx, merged)
	report.Columns = summarizeColumns(merged)
	report.LabelNA = labelNACounts(merged)

	a.logger.InfoContext(ctx, "audit_completed",
		slog.Int("rows", report.Rows),
		slog.Int("effective_date_columns", len(report.Lookahead)),
		slog.Int("lookahead_violations", report.TotalViolations()))
	return report
}

func (a *Auditor) lookahead(ctx context.Context, t domain.Table) []domain.LookaheadResult {
	cols := t.ColumnsContaining(domain.ColumnEffectiveDate)
	results := make([]domain.LookaheadResult, 0, len(cols))
	if !t.HasColumn(domain.ColumnDate) {
		a.logger.WarnContext(ctx, "audit_missing_date_column")
		return results
	}

	dates := t.Column(domain.ColumnDate)
	for _, col := range cols {
		violations := 0
		firstRow := -1
		for i, eff := range t.Column(col) {
			if domain.IsNull(eff) {
				continue
			}
			if after(eff, dates[i]) {
				violations++
				if firstRow < 0 {
					firstRow = i
				}
			}
		}

		results = append(results, domain.LookaheadResult{Column: col, Violations: violations})
		if violations > 0 {
			a.logger.ErrorContext(ctx, "lookahead_violation",
				slog.String("column", col),
				slog.Int("violations", violations),
				slog.String("ticker", t.Value(firstRow, domain.ColumnTicker)),
				slog.String("date", dates[firstRow]))
		} else {
			a.logger.DebugContext(ctx, "lookahead_check_passed", slog.String("column", col))
		}
	}
	return results
}

// after reports whether effective is strictly later than observed. Values
// are compared as normalized ISO dates; unparseable values fall back to a
// string comparison.
func after(effective, observed string) bool {
	e, errE := calendar.NormalizeDate(effective)
	o, errO := calendar.NormalizeDate(observed)
	if errE != nil || errO != nil {
		return strings.TrimSpace(effective) > strings.TrimSpace(observed)
	}
	return e > o
}

func summarizeColumns(t domain.Table) []domain.ColumnSummary {
	summaries := make([]domain.ColumnSummary, 0, len(t.Columns))
	for _, col := range t.Columns {
		values := t.Column(col)
		missing := 0
		for _, v := range values {
			if domain.IsNull(v) {
				missing++
			}
		}

		s := domain.ColumnSummary{Column: col, MissingCount: missing}
		if len(values) > 0 {
			s.MissingPercent = math.Round(float64(missing)/float64(len(values))*10000) / 100
		}
		if nums, ok := numericValues(values); ok {
			d := Describe(nums)
			s.Stats = &d
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func labelNACounts(t domain.Table) []domain.LabelNACount {
	var counts []domain.LabelNACount
	for _, col := range t.Columns {
		if !strings.HasPrefix(col, domain.LabelNAPrefix) {
			continue
		}
		n := 0
		for _, v := range t.Column(col) {
			if strings.TrimSpace(v) == "1" {
				n++
			}
		}
		counts = append(counts, domain.LabelNACount{Horizon: col, Count: n})
	}
	return counts
}
