package labeling

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"finset/internal/assembly"
	"finset/internal/calendar"
	"finset/internal/exporter"
	"finset/pkg/contracts/domain"
)

// Request describes one labeling run over persisted artifacts
type Request struct {
	GoldPath     string
	PricePath    string
	CalendarPath string
	OutputPath   string
}

// Result summarizes a labeling run
type Result struct {
	OutputPath string         `json:"output_path"`
	Rows       int            `json:"rows"`
	NACounts   map[string]int `json:"na_counts"`
}

// Run labels the persisted gold table. The full calendar is used so horizons
// that cross the assembly end date still resolve.
func (l *Labeler) Run(ctx context.Context, req Request) (*Result, error) {
	gold, err := assembly.LoadGold(req.GoldPath)
	if err != nil {
		return nil, err
	}
	cal, err := calendar.Load(req.CalendarPath, "", "")
	if err != nil {
		return nil, err
	}
	prices, err := LoadPriceSeries(req.PricePath, l.PriceColumn)
	if err != nil {
		return nil, err
	}

	rows, err := l.Label(ctx, gold, prices, cal)
	if err != nil {
		return nil, err
	}

	written, err := l.write(req.OutputPath, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to write labels: %w", err)
	}

	res := &Result{OutputPath: req.OutputPath, Rows: written, NACounts: make(map[string]int)}
	for _, r := range rows {
		for _, lbl := range r.Labels {
			if lbl.NA {
				res.NACounts[fmt.Sprintf("%dd", lbl.Horizon)]++
			}
		}
	}

	l.logger.InfoContext(ctx, "labels_saved",
		slog.String("path", req.OutputPath),
		slog.Int("rows", res.Rows))
	return res, nil
}

// write streams label rows to a temporary file next to path and renames it
// into place, so readers never see a partial label table.
func (l *Labeler) write(path string, rows []domain.LabelRow) (int, error) {
	tmp := path + ".tmp"
	sw, err := exporter.NewCSVWriter(nil).CreateStreamWriter(tmp, l.Columns())
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := sw.WriteRecord(l.Record(r)); err != nil {
			sw.Close()
			os.Remove(tmp)
			return 0, err
		}
	}
	if err := sw.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return sw.Rows(), nil
}
