package domain

import "strings"

// Frequency classifies how often a source publishes observations
type Frequency string

const (
	FrequencyDaily        Frequency = "daily"
	FrequencyStatic       Frequency = "static"
	FrequencyLowFrequency Frequency = "low_frequency"
)

// ParseFrequency maps a configured frequency to its class.
// Anything that is not daily or static joins as-of.
func ParseFrequency(s string) Frequency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "daily", "1d":
		return FrequencyDaily
	case "static":
		return FrequencyStatic
	default:
		return FrequencyLowFrequency
	}
}

// ExactJoin reports whether sources of this class join on exact keys
func (f Frequency) ExactJoin() bool {
	return f == FrequencyDaily || f == FrequencyStatic
}

// SourceTable is one interface's normalized data
type SourceTable struct {
	InterfaceID string    `json:"interface_id"`
	Frequency   Frequency `json:"frequency"`
	Table       Table     `json:"table"`
}

// Well-known column names
const (
	ColumnTicker        = "ticker"
	ColumnDate          = "date"
	ColumnEffectiveDate = "effective_date"
	FeaturePrefix       = "feat_"
)
