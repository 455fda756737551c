package calendar

import (
	"fmt"

	"finset/internal/files"
)

// dateColumns lists the accepted calendar date columns in preference order
var dateColumns = []string{"date", "trade_date", "effective_date"}

// Load reads a calendar CSV and builds the [start, end] calendar from it
func Load(path, start, end string) (*Calendar, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	return Build(raw, start, end)
}

// LoadRaw reads every date from a calendar CSV without filtering
func LoadRaw(path string) ([]string, error) {
	t, err := files.ReadTable(path, files.ReadOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}
	for _, col := range dateColumns {
		if t.HasColumn(col) {
			return t.Column(col), nil
		}
	}
	return nil, fmt.Errorf("%w: %s has none of the columns %v", ErrCalendarUnavailable, path, dateColumns)
}
