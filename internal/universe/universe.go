// Package universe loads the instrument universe and builds the (ticker, date)
// base grid that every feature join appends to.
package universe

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"finset/internal/calendar"
	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// ErrUniverseUnavailable means the membership list is missing or empty
var ErrUniverseUnavailable = errors.New("universe unavailable")

// Universe is an ordered, duplicate-free set of tickers
type Universe []string

// Load reads an index-membership file (';' separated, code in the first column)
func Load(path string, policy ExchangePolicy) (Universe, error) {
	t, err := files.ReadTable(path, files.ReadOptions{Comma: ';', NoHeader: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUniverseUnavailable, err)
	}

	codes := t.Column("col_0")
	if len(codes) > 0 && !looksLikeCode(codes[0]) {
		codes = codes[1:]
	}
	return New(codes, policy)
}

// New builds a universe from bare or suffixed codes
func New(codes []string, policy ExchangePolicy) (Universe, error) {
	seen := make(map[string]struct{}, len(codes))
	u := make(Universe, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		ticker := policy.Ticker(c)
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		u = append(u, ticker)
	}
	if len(u) == 0 {
		return nil, fmt.Errorf("%w: no instrument codes", ErrUniverseUnavailable)
	}
	sort.Strings(u)
	return u, nil
}

func looksLikeCode(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return unicode.IsDigit(rune(s[0]))
}

// BuildGrid cross-products the universe with the calendar, sorted by (ticker, date)
func BuildGrid(u Universe, cal *calendar.Calendar) (domain.Table, error) {
	if len(u) == 0 {
		return domain.Table{}, fmt.Errorf("%w: empty universe", ErrUniverseUnavailable)
	}
	if cal == nil || cal.Len() == 0 {
		return domain.Table{}, calendar.ErrCalendarUnavailable
	}

	tickers := make([]string, len(u))
	copy(tickers, u)
	sort.Strings(tickers)

	dates := cal.Dates()
	grid := domain.NewTable(domain.ColumnTicker, domain.ColumnDate)
	grid.Rows = make([][]string, 0, len(tickers)*len(dates))
	for _, ticker := range tickers {
		for _, d := range dates {
			grid.Rows = append(grid.Rows, []string{ticker, d})
		}
	}
	return grid, nil
}
