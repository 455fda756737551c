package domain

import "fmt"

// HorizonLabel is the forward return at one horizon
type HorizonLabel struct {
	Horizon   int     `json:"horizon"`
	ReturnBps float64 `json:"return_bps"`
	NA        bool    `json:"na"`
}

// LabelRow holds every horizon label for a (ticker, date) pair
type LabelRow struct {
	Ticker string         `json:"ticker"`
	Date   string         `json:"date"`
	Labels []HorizonLabel `json:"labels"`
}

// Label returns the label for horizon h
func (r LabelRow) Label(h int) (HorizonLabel, bool) {
	for _, l := range r.Labels {
		if l.Horizon == h {
			return l, true
		}
	}
	return HorizonLabel{}, false
}

// ReturnColumn is the column holding the return in bps for horizon h
func ReturnColumn(h int) string {
	return fmt.Sprintf("r_%dd", h)
}

// NAColumn is the column holding the 0/1 unavailability flag for horizon h
func NAColumn(h int) string {
	return fmt.Sprintf("label_na_%dd", h)
}

// LabelNAPrefix starts every label unavailability column
const LabelNAPrefix = "label_na_"
