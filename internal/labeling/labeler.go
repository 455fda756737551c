// Package labeling computes forward-return labels over trading-day horizons.
package labeling

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"finset/internal/calendar"
	"finset/pkg/contracts/domain"
)

// Defaults for the labeler
var (
	DefaultHorizons = []int{1, 5, 20}
)

const (
	DefaultClipBps     = 2000.0
	DefaultPriceColumn = "adj_close_hfq"
)

var tenThousand = decimal.NewFromInt(10000)

// Labeler computes clipped forward returns in basis points
type Labeler struct {
	Horizons    []int
	ClipBps     float64
	PriceColumn string
	logger      *slog.Logger
}

// NewLabeler returns a labeler with the default horizons, clip and price column
func NewLabeler(logger *slog.Logger) *Labeler {
	if logger == nil {
		logger = slog.Default()
	}
	h := make([]int, len(DefaultHorizons))
	copy(h, DefaultHorizons)
	return &Labeler{
		Horizons:    h,
		ClipBps:     DefaultClipBps,
		PriceColumn: DefaultPriceColumn,
		logger:      logger.With(slog.String("component", "labeler")),
	}
}

// ReturnBps is 10000*(future/current - 1) clipped to [-clip, clip]. ok is false
// when current is zero or either price is not finite.
func ReturnBps(current, future, clip float64) (float64, bool) {
	if current == 0 || !finite(current) || !finite(future) {
		return 0, false
	}
	cur := decimal.NewFromFloat(current)
	fut := decimal.NewFromFloat(future)
	bps := fut.Sub(cur).Mul(tenThousand).Div(cur)

	limit := decimal.NewFromFloat(clip)
	if bps.GreaterThan(limit) {
		bps = limit
	} else if bps.LessThan(limit.Neg()) {
		bps = limit.Neg()
	}
	v, _ := bps.Float64()
	return v, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// PriceColumnIn returns the gold column holding the labeling price
func (l *Labeler) PriceColumnIn(gold domain.Table) (string, error) {
	matches := gold.ColumnsContaining(l.PriceColumn)
	candidates := matches[:0:0]
	for _, c := range matches {
		if c != l.PriceColumn && !isFeature(c) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no column containing %q in gold features", l.PriceColumn)
	}
	sort.Strings(candidates)
	return candidates[0], nil
}

func isFeature(c string) bool {
	return len(c) > len(domain.FeaturePrefix) && c[:len(domain.FeaturePrefix)] == domain.FeaturePrefix
}

// Label produces one LabelRow per gold row. Rows whose date is off-calendar or
// whose current price is missing or zero are unavailable at every horizon.
func (l *Labeler) Label(ctx context.Context, gold domain.Table, prices PriceSeries, cal *calendar.Calendar) ([]domain.LabelRow, error) {
	priceCol, err := l.PriceColumnIn(gold)
	if err != nil {
		return nil, err
	}
	l.logger.InfoContext(ctx, "label_price_column",
		slog.String("column", priceCol),
		slog.Int("rows", gold.Len()))

	rows := make([]domain.LabelRow, 0, gold.Len())
	offCalendar := 0
	for r := range gold.Rows {
		ticker := gold.Value(r, domain.ColumnTicker)
		date := gold.Value(r, domain.ColumnDate)
		row := domain.LabelRow{Ticker: ticker, Date: date, Labels: make([]domain.HorizonLabel, len(l.Horizons))}

		i, onCalendar := cal.Index(date)
		pt, hasPrice := gold.Float(r, priceCol)
		if !onCalendar {
			offCalendar++
			l.logger.WarnContext(ctx, "date_not_in_calendar",
				slog.String("ticker", ticker),
				slog.String("date", date))
		}
		if !onCalendar || !hasPrice || pt == 0 {
			for k, h := range l.Horizons {
				row.Labels[k] = domain.HorizonLabel{Horizon: h, NA: true}
			}
			rows = append(rows, row)
			continue
		}

		for k, h := range l.Horizons {
			row.Labels[k] = l.horizonLabel(ticker, i, h, pt, prices, cal)
		}
		rows = append(rows, row)
	}

	if offCalendar > 0 {
		l.logger.WarnContext(ctx, "labels_off_calendar",
			slog.Int("rows", offCalendar))
	}
	return rows, nil
}

func (l *Labeler) horizonLabel(ticker string, i, h int, pt float64, prices PriceSeries, cal *calendar.Calendar) domain.HorizonLabel {
	na := domain.HorizonLabel{Horizon: h, NA: true}
	futureDate, ok := cal.At(i + h)
	if !ok {
		return na
	}
	future, ok := prices.Price(ticker, futureDate)
	if !ok {
		return na
	}
	bps, ok := ReturnBps(pt, future, l.ClipBps)
	if !ok {
		return na
	}
	return domain.HorizonLabel{Horizon: h, ReturnBps: bps}
}

// Columns is the label table header: ticker,date,r_<h>d,label_na_<h>d,...
func (l *Labeler) Columns() []string {
	cols := []string{domain.ColumnTicker, domain.ColumnDate}
	for _, h := range l.Horizons {
		cols = append(cols, domain.ReturnColumn(h), domain.NAColumn(h))
	}
	return cols
}

// Record renders one label row in Columns order. NA returns are empty with
// flag 1.
func (l *Labeler) Record(r domain.LabelRow) []string {
	out := make([]string, 0, 2+2*len(l.Horizons))
	out = append(out, r.Ticker, r.Date)
	for _, h := range l.Horizons {
		lbl, ok := r.Label(h)
		if !ok || lbl.NA {
			out = append(out, "", "1")
			continue
		}
		out = append(out, domain.FormatFloat(lbl.ReturnBps), "0")
	}
	return out
}

// Table renders label rows as a table
func (l *Labeler) Table(rows []domain.LabelRow) domain.Table {
	t := domain.NewTable(l.Columns()...)
	t.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		t.Rows = append(t.Rows, l.Record(r))
	}
	return t
}
