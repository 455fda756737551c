// Package normalize turns raw fetch output into one silver table per
// interface: columns renamed to canonical names, observation dates replaced
// by ISO effective dates and ticker columns injected for per-ticker sources.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"finset/internal/calendar"
	"finset/internal/config"
	"finset/internal/exporter"
	"finset/internal/files"
	"finset/internal/infrastructure"
	"finset/pkg/contracts/domain"
)

// Normalizer consolidates fetch results into the silver layer
type Normalizer struct {
	interfaces map[string]config.Interface
	writer     *exporter.CSVWriter
	paths      *config.Paths
	metrics    *infrastructure.Metrics
	logger     *slog.Logger
}

// NewNormalizer creates a normalizer over the configured interfaces.
// metrics may be nil.
func NewNormalizer(interfaces []config.Interface, paths *config.Paths, metrics *infrastructure.Metrics, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	byID := make(map[string]config.Interface, len(interfaces))
	for _, iface := range interfaces {
		byID[iface.ID] = iface
	}
	return &Normalizer{
		interfaces: byID,
		writer:     exporter.NewCSVWriter(paths),
		paths:      paths,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "normalize")),
	}
}

// Process normalizes every result and writes silver/interface=<id>/data.csv
// per interface. cal is the full trading calendar, needed for lagged
// availability rules. Returns interface id to silver path.
func (n *Normalizer) Process(ctx context.Context, results []domain.FetchResult, cal *calendar.Calendar) (map[string]string, error) {
	n.logger.InfoContext(ctx, "normalize_started", slog.Int("results", len(results)))

	grouped := make(map[string][]domain.Table)
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iface, ok := n.interfaces[res.Task.InterfaceID]
		if !ok {
			n.logger.WarnContext(ctx, "normalize_unknown_interface",
				slog.String("interface", res.Task.InterfaceID))
			continue
		}

		raw, err := files.ReadTable(res.RawPath, files.ReadOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to read raw file for %s: %w", iface.ID, err)
		}
		table, err := Normalize(iface, res.Task, raw, cal)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize %s: %w", iface.ID, err)
		}
		grouped[iface.ID] = append(grouped[iface.ID], table)
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string]string, len(ids))
	for _, id := range ids {
		silver := Consolidate(grouped[id])
		path := n.paths.SilverPath(id)
		if err := n.writer.WriteTable(path, silver); err != nil {
			return nil, fmt.Errorf("failed to write silver table for %s: %w", id, err)
		}
		out[id] = path
		if n.metrics != nil {
			n.metrics.SilverRows.WithLabelValues(id).Set(float64(silver.Len()))
		}
		n.logger.InfoContext(ctx, "silver_saved",
			slog.String("interface", id),
			slog.Int("rows", silver.Len()),
			slog.Int("parts", len(grouped[id])),
			slog.String("path", path))
	}
	return out, nil
}

// Normalize applies one interface's column map, availability rule and
// ticker injection to a raw table.
func Normalize(iface config.Interface, task domain.FetchTask, raw domain.Table, cal *calendar.Calendar) (domain.Table, error) {
	t := raw.Clone()
	froms := make([]string, 0, len(iface.ColumnsMap))
	for from := range iface.ColumnsMap {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		to := iface.ColumnsMap[from]
		if !t.HasColumn(from) || from == to {
			continue
		}
		if t.HasColumn(to) {
			t.DropColumn(to)
		}
		if err := t.RenameColumn(from, to); err != nil {
			return domain.Table{}, err
		}
	}

	if t.HasColumn(domain.ColumnDate) {
		kind, lag, err := config.ParseAvailRule(iface.AvailRule)
		if err != nil {
			return domain.Table{}, err
		}
		if lag > 0 && cal == nil {
			return domain.Table{}, fmt.Errorf("avail_rule %s needs a trading calendar", iface.AvailRule)
		}

		dates := t.Column(domain.ColumnDate)
		effective := make([]string, len(dates))
		for i, d := range dates {
			effective[i] = EffectiveDate(d, kind, lag, cal)
		}
		t.DropColumn(domain.ColumnEffectiveDate)
		t.DropColumn(domain.ColumnDate)
		if err := t.AddColumn(domain.ColumnEffectiveDate, effective); err != nil {
			return domain.Table{}, err
		}
	}

	if task.Ticker != "" && !t.HasColumn(domain.ColumnTicker) {
		values := make([]string, t.Len())
		for i := range values {
			values[i] = task.Ticker
		}
		if err := t.AddColumn(domain.ColumnTicker, values); err != nil {
			return domain.Table{}, err
		}
	}
	return t, nil
}

// EffectiveDate maps an observation date to the date it became available.
// Unparseable dates and dates whose availability lies beyond the calendar
// yield null.
func EffectiveDate(observed, kind string, lag int, cal *calendar.Calendar) string {
	d, err := calendar.NormalizeDate(observed)
	if err != nil {
		return ""
	}
	if kind == config.AvailSameDay || lag == 0 {
		return d
	}
	eff, ok := cal.After(d, lag)
	if !ok {
		return ""
	}
	return eff
}

// Consolidate stacks tables under the union of their columns in first-seen
// order. Missing cells are null.
func Consolidate(tables []domain.Table) domain.Table {
	var cols []string
	index := make(map[string]int)
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := index[c]; !ok {
				index[c] = len(cols)
				cols = append(cols, c)
			}
		}
	}

	out := domain.NewTable(cols...)
	for _, t := range tables {
		pos := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			pos[i] = index[c]
		}
		for _, row := range t.Rows {
			merged := make([]string, len(cols))
			for i, v := range row {
				if i < len(pos) {
					merged[pos[i]] = v
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}
