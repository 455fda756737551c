package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Interface describes one upstream data interface
type Interface struct {
	ID              string            `yaml:"id" validate:"required"`
	SourceDomain    string            `yaml:"source_domain" validate:"required"`
	Freq            string            `yaml:"freq" validate:"required"`
	Scope           string            `yaml:"scope"`
	AvailRule       string            `yaml:"avail_rule"`
	Params          []string          `yaml:"params"`
	ColumnsMap      map[string]string `yaml:"columns_map"`
	BootstrapSource string            `yaml:"bootstrap_source"`
	HyphenDate      bool              `yaml:"hyphen_date"`

	// HTTP endpoint used by the online transport
	URL    string            `yaml:"url"`
	Format string            `yaml:"format" validate:"omitempty,oneof=csv json"`
	Query  map[string]string `yaml:"query"`
	// RecordsPath is the dotted path to the record array in JSON bodies
	RecordsPath string `yaml:"records_path"`
}

// DomainRateLimit is the token bucket and worker settings for a source domain
type DomainRateLimit struct {
	Domain      string  `yaml:"domain" validate:"required"`
	Rate        float64 `yaml:"rate" validate:"gt=0"`
	Capacity    int     `yaml:"capacity" validate:"gt=0"`
	Retry       int     `yaml:"retry" validate:"gte=1"`
	Concurrency int     `yaml:"concurrency" validate:"gte=1"`
}

// Split holds the train/validation/test date boundaries
type Split struct {
	TrainStart      string `yaml:"train_start"`
	TrainEnd        string `yaml:"train_end"`
	ValidationStart string `yaml:"validation_start"`
	ValidationEnd   string `yaml:"validation_end"`
	TestStart       string `yaml:"test_start"`
	TestEnd         string `yaml:"test_end"`
}

// Of returns train, validation, test or "" for an ISO date
func (s Split) Of(date string) string {
	within := func(start, end string) bool {
		return start != "" && end != "" && date >= start && date <= end
	}
	switch {
	case within(s.TrainStart, s.TrainEnd):
		return "train"
	case within(s.ValidationStart, s.ValidationEnd):
		return "validation"
	case within(s.TestStart, s.TestEnd):
		return "test"
	}
	return ""
}

type interfacesDoc struct {
	Interfaces []Interface `yaml:"interfaces"`
}

type rateLimitsDoc struct {
	Domains []DomainRateLimit `yaml:"domains"`
}

type splitDoc struct {
	Boundaries Split `yaml:"split_boundaries"`
}

// Availability rules
const (
	AvailSameDay        = "same_day"
	AvailNextTradingDay = "next_trading_day"
	AvailLag            = "lag"
	availLagPrefix      = AvailLag + ":"
)

// ParseAvailRule returns the rule kind and its trading-day lag. An empty rule
// is same_day.
func ParseAvailRule(rule string) (string, int, error) {
	r := strings.TrimSpace(rule)
	switch {
	case r == "" || r == AvailSameDay:
		return AvailSameDay, 0, nil
	case r == AvailNextTradingDay:
		return AvailNextTradingDay, 1, nil
	case strings.HasPrefix(r, availLagPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(r, availLagPrefix))
		if err != nil || n < 0 {
			return "", 0, fmt.Errorf("invalid avail_rule %q", rule)
		}
		return AvailLag, n, nil
	}
	return "", 0, fmt.Errorf("unknown avail_rule %q", rule)
}
