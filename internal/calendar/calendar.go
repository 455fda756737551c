// Package calendar builds the trading-day index used for grid construction and
// horizon arithmetic. Dates are canonical ISO strings (2006-01-02).
package calendar

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ErrCalendarUnavailable means no trading calendar could be built; nothing
// downstream can run without one.
var ErrCalendarUnavailable = errors.New("trading calendar unavailable")

// ISOLayout is the canonical date key format
const ISOLayout = "2006-01-02"

var dateLayouts = []string{
	ISOLayout,
	"20060102",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// NormalizeDate parses a date in any accepted layout and returns its ISO key
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(ISOLayout), nil
}

// ParseDate parses a date in any accepted layout, truncated to the day
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Calendar is an immutable, strictly increasing sequence of trading dates
type Calendar struct {
	dates []string
	index map[string]int
}

// Build filters raw dates to the inclusive [start, end] range, sorts and
// deduplicates them. An empty bound is unbounded.
func Build(raw []string, start, end string) (*Calendar, error) {
	lo, hi, err := bounds(start, end)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(raw))
	dates := make([]string, 0, len(raw))
	for _, r := range raw {
		d, err := NormalizeDate(r)
		if err != nil {
			slog.Debug("calendar_date_skipped",
				slog.String("raw", r),
				slog.String("error", err.Error()))
			continue
		}
		if (lo != "" && d < lo) || (hi != "" && d > hi) {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}

	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no trading dates in range [%s, %s]", ErrCalendarUnavailable, start, end)
	}

	sort.Strings(dates)
	return newCalendar(dates), nil
}

func bounds(start, end string) (string, string, error) {
	var lo, hi string
	var err error
	if start != "" {
		if lo, err = NormalizeDate(start); err != nil {
			return "", "", fmt.Errorf("invalid start date: %w", err)
		}
	}
	if end != "" {
		if hi, err = NormalizeDate(end); err != nil {
			return "", "", fmt.Errorf("invalid end date: %w", err)
		}
	}
	if lo != "" && hi != "" && lo > hi {
		return "", "", fmt.Errorf("start date %s is after end date %s", lo, hi)
	}
	return lo, hi, nil
}

func newCalendar(dates []string) *Calendar {
	index := make(map[string]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}
	return &Calendar{dates: dates, index: index}
}

// Index returns the position of an ISO date in the calendar
func (c *Calendar) Index(date string) (int, bool) {
	i, ok := c.index[date]
	return i, ok
}

// At returns the date at position i
func (c *Calendar) At(i int) (string, bool) {
	if i < 0 || i >= len(c.dates) {
		return "", false
	}
	return c.dates[i], true
}

// Offset returns the trading date h positions after date
func (c *Calendar) Offset(date string, h int) (string, bool) {
	i, ok := c.Index(date)
	if !ok {
		return "", false
	}
	return c.At(i + h)
}

// Len returns the number of trading dates
func (c *Calendar) Len() int {
	return len(c.dates)
}

// Dates returns a copy of the trading dates
func (c *Calendar) Dates() []string {
	out := make([]string, len(c.dates))
	copy(out, c.dates)
	return out
}

// First returns the earliest trading date
func (c *Calendar) First() string {
	return c.dates[0]
}

// Last returns the latest trading date
func (c *Calendar) Last() string {
	return c.dates[len(c.dates)-1]
}

// Slice returns the sub-calendar within [start, end], re-indexed from zero
func (c *Calendar) Slice(start, end string) (*Calendar, error) {
	return Build(c.dates, start, end)
}

// Contains reports whether date is a trading date
func (c *Calendar) Contains(date string) bool {
	_, ok := c.index[date]
	return ok
}

// After returns the n-th trading date strictly after date (n >= 1). date
// itself need not be a trading date.
func (c *Calendar) After(date string, n int) (string, bool) {
	if n < 1 {
		return "", false
	}
	i := sort.SearchStrings(c.dates, date)
	if i < len(c.dates) && c.dates[i] == date {
		i++
	}
	return c.At(i + n - 1)
}
