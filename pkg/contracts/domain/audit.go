package domain

import "time"

// AuditReport summarizes integrity and coverage of the gold tables
type AuditReport struct {
	Rows        int               `json:"rows"`
	Lookahead   []LookaheadResult `json:"lookahead"`
	Columns     []ColumnSummary   `json:"columns"`
	LabelNA     []LabelNACount    `json:"label_na"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// LookaheadResult counts rows whose effective date is after the observation date
type LookaheadResult struct {
	Column     string `json:"column"`
	Violations int    `json:"violations"`
}

// ColumnSummary carries coverage and, for numeric columns, descriptive stats
type ColumnSummary struct {
	Column         string         `json:"column"`
	MissingCount   int            `json:"missing_count"`
	MissingPercent float64        `json:"missing_percentage"`
	Stats          *DescribeStats `json:"stats,omitempty"`
}

// DescribeStats mirrors a dataframe describe() row
type DescribeStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// LabelNACount is the number of unavailable labels for one horizon column
type LabelNACount struct {
	Horizon string `json:"label_horizon"`
	Count   int    `json:"na_label_count"`
}

// TotalViolations sums lookahead violations across columns
func (r AuditReport) TotalViolations() int {
	total := 0
	for _, l := range r.Lookahead {
		total += l.Violations
	}
	return total
}

// Passed is false when any lookahead violation exists
func (r AuditReport) Passed() bool {
	return r.TotalViolations() == 0
}
