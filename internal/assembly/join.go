package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"finset/internal/calendar"
	"finset/pkg/contracts/domain"
)

var (
	// ErrNoJoinKey means a source has neither effective_date nor date
	ErrNoJoinKey = errors.New("source has no date or effective_date column")
	// ErrEmptySource means a source has no rows to join
	ErrEmptySource = errors.New("source is empty")
	// ErrNoUsableKeys means every source row has a null key date
	ErrNoUsableKeys = errors.New("source has no usable key dates")
)

// maxLoggedRows bounds the row indices attached to a skipped-rows warning
const maxLoggedRows = 20

// SourceResult records the outcome of joining one source
type SourceResult struct {
	InterfaceID string           `json:"interface_id"`
	Frequency   domain.Frequency `json:"frequency"`
	Joined      bool             `json:"joined"`
	Columns     []string         `json:"columns,omitempty"`
	Matched     int              `json:"matched_rows"`
	Err         error            `json:"-"`
}

// Error returns the failure message, if any
func (r SourceResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// FeatureColumn is the gold column name for a source column
func FeatureColumn(column, interfaceID string) string {
	return domain.FeaturePrefix + column + "_" + interfaceID
}

// EffectiveDateColumn is the gold column carrying a source's matched key date
func EffectiveDateColumn(interfaceID string) string {
	return domain.ColumnEffectiveDate + "_" + interfaceID
}

// prepared is a source reduced to normalized join keys and feature positions
type prepared struct {
	interfaceID string
	hasTicker   bool
	tickers     []string
	keyColumn   string
	keys        []string // "" marks a row that cannot be joined
	skipped     []int
	featureIdx  []int
	columns     []string
	rows        [][]string
}

func (p prepared) tickerAt(i int) string {
	if !p.hasTicker {
		return ""
	}
	return p.tickers[i]
}

// block is the set of columns one source contributes, aligned to grid rows
type block struct {
	columns []string
	values  [][]string
	matched int
}

// Join left-joins every source onto the grid. The grid is not modified.
func (a *Assembler) Join(ctx context.Context, grid domain.Table, sources []domain.SourceTable) (domain.Table, []SourceResult) {
	gold := grid.Clone()
	results := make([]SourceResult, 0, len(sources))

	for _, src := range sources {
		res := SourceResult{InterfaceID: src.InterfaceID, Frequency: src.Frequency}

		b, err := a.joinSource(ctx, gold, src)
		if err == nil {
			err = appendBlock(&gold, b)
		}
		if err != nil {
			res.Err = err
			a.logger.WarnContext(ctx, "source_join_failed",
				slog.String("interface_id", src.InterfaceID),
				slog.String("frequency", string(src.Frequency)),
				slog.String("error", err.Error()))
			results = append(results, res)
			continue
		}

		res.Joined = true
		res.Columns = b.columns
		res.Matched = b.matched
		a.logger.InfoContext(ctx, "source_joined",
			slog.String("interface_id", src.InterfaceID),
			slog.String("frequency", string(src.Frequency)),
			slog.Int("columns", len(b.columns)),
			slog.Int("matched_rows", b.matched),
			slog.Int("grid_rows", gold.Len()))
		results = append(results, res)
	}

	return gold, results
}

func (a *Assembler) joinSource(ctx context.Context, gold domain.Table, src domain.SourceTable) (block, error) {
	p, err := prepare(src)
	if err != nil {
		return block{}, err
	}
	if n := len(p.skipped); n > 0 {
		a.logger.WarnContext(ctx, "source_rows_skipped",
			slog.String("interface_id", p.interfaceID),
			slog.String("key_column", p.keyColumn),
			slog.Int("rows", n),
			slog.Any("row_indices", p.skipped[:min(n, maxLoggedRows)]))
	}
	if src.Frequency.ExactJoin() {
		return a.exactJoin(ctx, gold, p), nil
	}
	return asOfJoin(gold, p), nil
}

// prepare resolves the join key and normalizes every key date.
// effective_date wins over date; date is then dropped. Rows with a null key
// date (not yet available) are recorded in skipped and never match a grid row;
// a non-null key that does not parse fails the source.
func prepare(src domain.SourceTable) (prepared, error) {
	t := src.Table
	if t.Len() == 0 {
		return prepared{}, ErrEmptySource
	}

	keyCol := ""
	switch {
	case t.HasColumn(domain.ColumnEffectiveDate):
		keyCol = domain.ColumnEffectiveDate
	case t.HasColumn(domain.ColumnDate):
		keyCol = domain.ColumnDate
	default:
		return prepared{}, ErrNoJoinKey
	}

	p := prepared{
		interfaceID: src.InterfaceID,
		keyColumn:   keyCol,
		hasTicker:   t.HasColumn(domain.ColumnTicker),
		keys:        make([]string, t.Len()),
		rows:        t.Rows,
	}

	keyIdx := t.ColumnIndex(keyCol)
	for i, row := range t.Rows {
		raw := ""
		if keyIdx < len(row) {
			raw = row[keyIdx]
		}
		if domain.IsNull(raw) {
			p.skipped = append(p.skipped, i)
			continue
		}
		d, err := calendar.NormalizeDate(raw)
		if err != nil {
			return prepared{}, fmt.Errorf("row %d %s: %w", i, keyCol, err)
		}
		p.keys[i] = d
	}
	if len(p.skipped) == t.Len() {
		return prepared{}, fmt.Errorf("%w in %s", ErrNoUsableKeys, keyCol)
	}

	if p.hasTicker {
		p.tickers = make([]string, t.Len())
		for i := range t.Rows {
			p.tickers[i] = strings.TrimSpace(t.Value(i, domain.ColumnTicker))
		}
	}

	for i, c := range t.Columns {
		switch c {
		case domain.ColumnTicker, domain.ColumnDate, domain.ColumnEffectiveDate:
			continue
		}
		p.featureIdx = append(p.featureIdx, i)
		p.columns = append(p.columns, FeatureColumn(c, src.InterfaceID))
	}
	p.columns = append(p.columns, EffectiveDateColumn(src.InterfaceID))
	return p, nil
}

func (p prepared) groupKey(ticker string) string {
	if p.hasTicker {
		return ticker
	}
	return ""
}

// exactJoin attaches the source row with the same (ticker, date) or (date).
// Duplicate source keys keep the last row so the grid row count is unchanged.
func (a *Assembler) exactJoin(ctx context.Context, gold domain.Table, p prepared) block {
	src := p.rows
	lookup := make(map[string]int, len(p.keys))
	dups := 0
	for i, d := range p.keys {
		if d == "" {
			continue
		}
		k := p.groupKey(p.tickerAt(i)) + "\x00" + d
		if _, exists := lookup[k]; exists {
			dups++
		}
		lookup[k] = i
	}
	if dups > 0 {
		a.logger.WarnContext(ctx, "duplicate_source_keys",
			slog.String("interface_id", p.interfaceID),
			slog.Int("duplicates", dups))
	}

	b := newBlock(p, gold.Len())
	tickerIdx := gold.ColumnIndex(domain.ColumnTicker)
	dateIdx := gold.ColumnIndex(domain.ColumnDate)
	for r, row := range gold.Rows {
		k := p.groupKey(row[tickerIdx]) + "\x00" + row[dateIdx]
		if i, ok := lookup[k]; ok {
			b.fill(r, p, src[i], p.keys[i])
		}
	}
	return b
}

// keyed is one source row position in date order
type keyed struct {
	date string
	row  int
}

// asOfJoin attaches, per grid row, the latest source row whose key date is on or
// before the grid date. Rows sharing a date keep source order, so the last wins.
func asOfJoin(gold domain.Table, p prepared) block {
	src := p.rows
	groups := make(map[string][]keyed)
	for i, d := range p.keys {
		if d == "" {
			continue
		}
		g := p.groupKey(p.tickerAt(i))
		groups[g] = append(groups[g], keyed{date: d, row: i})
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].date < g[j].date })
	}

	b := newBlock(p, gold.Len())
	tickerIdx := gold.ColumnIndex(domain.ColumnTicker)
	dateIdx := gold.ColumnIndex(domain.ColumnDate)
	for r, row := range gold.Rows {
		g := groups[p.groupKey(row[tickerIdx])]
		if len(g) == 0 {
			continue
		}
		date := row[dateIdx]
		j := sort.Search(len(g), func(k int) bool { return g[k].date > date }) - 1
		if j < 0 {
			continue
		}
		b.fill(r, p, src[g[j].row], g[j].date)
	}
	return b
}

func newBlock(p prepared, n int) block {
	b := block{columns: p.columns, values: make([][]string, n)}
	for i := range b.values {
		b.values[i] = make([]string, len(p.columns))
	}
	return b
}

func (b *block) fill(r int, p prepared, srcRow []string, keyDate string) {
	for j, idx := range p.featureIdx {
		if idx < len(srcRow) {
			b.values[r][j] = srcRow[idx]
		}
	}
	b.values[r][len(p.featureIdx)] = keyDate
	b.matched++
}

func appendBlock(gold *domain.Table, b block) error {
	for _, c := range b.columns {
		if gold.HasColumn(c) {
			return fmt.Errorf("column %s already present in gold table", c)
		}
	}
	gold.Columns = append(gold.Columns, b.columns...)
	for i := range gold.Rows {
		gold.Rows[i] = append(gold.Rows[i], b.values[i]...)
	}
	return nil
}
