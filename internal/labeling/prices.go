package labeling

import (
	"fmt"
	"strings"

	"finset/internal/calendar"
	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// PriceSeries maps (ticker, ISO date) to a price
type PriceSeries map[string]map[string]float64

// Price returns the recorded price for ticker on date
func (p PriceSeries) Price(ticker, date string) (float64, bool) {
	byDate, ok := p[ticker]
	if !ok {
		return 0, false
	}
	v, ok := byDate[date]
	return v, ok
}

// Set records a price
func (p PriceSeries) Set(ticker, date string, price float64) {
	byDate, ok := p[ticker]
	if !ok {
		byDate = make(map[string]float64)
		p[ticker] = byDate
	}
	byDate[date] = price
}

// PriceSeriesFromTable builds a series from a silver price table keyed by
// effective_date (or date) and ticker. Rows with unparseable keys or prices are skipped.
func PriceSeriesFromTable(t domain.Table, priceColumn string) (PriceSeries, error) {
	keyCol := domain.ColumnEffectiveDate
	if !t.HasColumn(keyCol) {
		keyCol = domain.ColumnDate
	}
	for _, c := range []string{keyCol, domain.ColumnTicker, priceColumn} {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("price table is missing column %s", c)
		}
	}

	series := make(PriceSeries)
	for i := range t.Rows {
		d, err := calendar.NormalizeDate(t.Value(i, keyCol))
		if err != nil {
			continue
		}
		v, ok := t.Float(i, priceColumn)
		if !ok {
			continue
		}
		series.Set(strings.TrimSpace(t.Value(i, domain.ColumnTicker)), d, v)
	}
	return series, nil
}

// LoadPriceSeries reads the price interface's silver table
func LoadPriceSeries(path, priceColumn string) (PriceSeries, error) {
	t, err := files.ReadTable(path, files.ReadOptions{Comma: ','})
	if err != nil {
		return nil, fmt.Errorf("failed to load price series: %w", err)
	}
	return PriceSeriesFromTable(t, priceColumn)
}
