package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"finset/internal/calendar"
	"finset/internal/files"
	"finset/internal/universe"
	"finset/pkg/contracts/domain"
)

// Assembler joins silver sources onto the base grid
type Assembler struct {
	logger *slog.Logger
}

// NewAssembler creates an assembler; a nil logger uses slog.Default
func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger.With(slog.String("component", "assembler"))}
}

// Request describes one assembly run
type Request struct {
	CalendarPath string
	UniversePath string
	StartDate    string
	EndDate      string
	Policy       universe.ExchangePolicy
	// Silver maps interface id to its consolidated silver table
	Silver map[string]string
	// Frequencies maps interface id to its configured frequency
	Frequencies map[string]domain.Frequency
	OutputPath  string
}

// Result summarizes an assembly run
type Result struct {
	OutputPath string         `json:"output_path"`
	Rows       int            `json:"rows"`
	Columns    int            `json:"columns"`
	Tickers    int            `json:"tickers"`
	Dates      int            `json:"dates"`
	Sources    []SourceResult `json:"sources"`
}

// Failed returns the interface ids whose join failed
func (r *Result) Failed() []string {
	var out []string
	for _, s := range r.Sources {
		if !s.Joined {
			out = append(out, s.InterfaceID)
		}
	}
	return out
}

// Assemble builds the grid, joins every silver source and persists the gold table.
// A missing calendar or universe is fatal; a failing source is not.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	cal, err := calendar.Load(req.CalendarPath, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	u, err := universe.Load(req.UniversePath, req.Policy)
	if err != nil {
		return nil, err
	}
	grid, err := universe.BuildGrid(u, cal)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "base_grid_built",
		slog.Int("rows", grid.Len()),
		slog.Int("tickers", len(u)),
		slog.Int("dates", cal.Len()))

	sources, loadFailures := a.loadSources(ctx, req)
	gold, results := a.Join(ctx, grid, sources)
	results = append(results, loadFailures...)

	if req.OutputPath != "" {
		if err := WriteGold(req.OutputPath, gold); err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "gold_features_saved",
			slog.String("path", req.OutputPath),
			slog.Int("rows", gold.Len()),
			slog.Int("columns", len(gold.Columns)))
	}

	return &Result{
		OutputPath: req.OutputPath,
		Rows:       gold.Len(),
		Columns:    len(gold.Columns),
		Tickers:    len(u),
		Dates:      cal.Len(),
		Sources:    results,
	}, nil
}

// loadSources reads silver tables in interface id order. Unknown interfaces
// and unreadable files fail that source only.
func (a *Assembler) loadSources(ctx context.Context, req Request) ([]domain.SourceTable, []SourceResult) {
	ids := make([]string, 0, len(req.Silver))
	for id := range req.Silver {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sources []domain.SourceTable
	var failures []SourceResult
	for _, id := range ids {
		freq, ok := req.Frequencies[id]
		if !ok {
			err := fmt.Errorf("no interface config for %s", id)
			a.logger.WarnContext(ctx, "source_skipped",
				slog.String("interface_id", id),
				slog.String("error", err.Error()))
			failures = append(failures, SourceResult{InterfaceID: id, Err: err})
			continue
		}
		t, err := files.ReadTable(req.Silver[id], files.ReadOptions{Comma: ','})
		if err != nil {
			a.logger.WarnContext(ctx, "source_load_failed",
				slog.String("interface_id", id),
				slog.String("path", req.Silver[id]),
				slog.String("error", err.Error()))
			failures = append(failures, SourceResult{InterfaceID: id, Frequency: freq, Err: err})
			continue
		}
		sources = append(sources, domain.SourceTable{InterfaceID: id, Frequency: freq, Table: t})
	}
	return sources, failures
}
