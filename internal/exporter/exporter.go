package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"finset/internal/config"
	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// CPTRecord is one continued-pretraining line
type CPTRecord struct {
	Text string `json:"text"`
}

// SFTRecord is one instruction-tuning line
type SFTRecord struct {
	Instruction string `json:"Instruction"`
	Input       string `json:"Input"`
	Output      string `json:"Output"`
}

// Request selects the persisted tables to export
type Request struct {
	FeaturesPath string
	LabelsPath   string
	Suffix       string
}

// Result lists what an export wrote
type Result struct {
	CPTPath     string         `json:"cpt_path"`
	SFTPath     string         `json:"sft_path"`
	PreviewPath string         `json:"preview_path"`
	Records     int            `json:"records"`
	NATargets   int            `json:"na_targets"`
	Splits      map[string]int `json:"splits"`
}

// Exporter renders the merged gold tables as CPT/SFT JSONL and a text preview
type Exporter struct {
	paths  *config.Paths
	cfg    config.ExportConfig
	split  config.Split
	logger *slog.Logger
}

// NewExporter creates an exporter writing under paths
func NewExporter(paths *config.Paths, cfg config.ExportConfig, split config.Split, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TargetHorizon <= 0 {
		cfg.TargetHorizon = 1
	}
	return &Exporter{
		paths:  paths,
		cfg:    cfg,
		split:  split,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// featureColumn pairs a gold column with the name printed for it
type featureColumn struct {
	column string
	label  string
}

// featureColumns resolves the configured names against the merged table.
// A configured name matches the column itself or every feat_<name>_<iface>
// column. With nothing configured every feat_ column is used.
func (e *Exporter) featureColumns(t domain.Table) []featureColumn {
	var out []featureColumn
	if len(e.cfg.FeatureColumns) == 0 {
		for _, c := range t.Columns {
			if strings.HasPrefix(c, domain.FeaturePrefix) {
				out = append(out, featureColumn{column: c, label: c})
			}
		}
		return out
	}
	for _, name := range e.cfg.FeatureColumns {
		if t.HasColumn(name) {
			out = append(out, featureColumn{column: name, label: name})
			continue
		}
		prefix := domain.FeaturePrefix + name + "_"
		var matched []string
		for _, c := range t.Columns {
			if strings.HasPrefix(c, prefix) {
				matched = append(matched, c)
			}
		}
		sort.Strings(matched)
		for _, c := range matched {
			label := name
			if len(matched) > 1 {
				label = c
			}
			out = append(out, featureColumn{column: c, label: label})
		}
	}
	return out
}

// Export writes the three artifacts for req.Suffix
func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	features, err := files.ReadTable(req.FeaturesPath, files.ReadOptions{Comma: ','})
	if err != nil {
		return nil, fmt.Errorf("gold features unavailable: %w", err)
	}
	labels, err := files.ReadTable(req.LabelsPath, files.ReadOptions{Comma: ','})
	if err != nil {
		return nil, fmt.Errorf("gold labels unavailable: %w", err)
	}
	merged, err := features.InnerJoin(labels, domain.ColumnTicker, domain.ColumnDate)
	if err != nil {
		return nil, fmt.Errorf("failed to merge gold tables: %w", err)
	}
	e.logger.InfoContext(ctx, "export_merged", slog.Int("rows", merged.Len()))

	return e.ExportTable(ctx, merged, req.Suffix)
}

// ExportTable renders an already merged table
func (e *Exporter) ExportTable(ctx context.Context, merged domain.Table, suffix string) (*Result, error) {
	h := e.cfg.TargetHorizon
	retCol, naCol := domain.ReturnColumn(h), domain.NAColumn(h)
	if !merged.HasColumn(retCol) {
		return nil, fmt.Errorf("merged table has no %s column", retCol)
	}
	cols := e.featureColumns(merged)
	instruction := fmt.Sprintf("Based on the provided market data for a stock on a given day, predict the future return in basis points (bps) for the next %d trading day(s).", h)
	targetHeader := fmt.Sprintf("TARGET_RETURN_BPS_NEXT_%dD:", h)

	var cpt, sft, txt bytes.Buffer
	cptEnc := newJSONLEncoder(&cpt)
	sftEnc := newJSONLEncoder(&sft)

	res := &Result{
		CPTPath:     e.paths.CPTPath(suffix),
		SFTPath:     e.paths.SFTPath(suffix),
		PreviewPath: e.paths.PreviewPath(suffix),
		Splits:      make(map[string]int),
	}

	for r := range merged.Rows {
		if r%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ticker := merged.Value(r, domain.ColumnTicker)
		date := merged.Value(r, domain.ColumnDate)

		var lines []string
		for _, c := range cols {
			v := merged.Value(r, c.column)
			if domain.IsNull(v) {
				continue
			}
			lines = append(lines, c.label+"="+formatFeature(v))
		}
		featuresText := strings.Join(lines, "\n")
		target := formatTarget(merged.Value(r, retCol), merged.Value(r, naCol))
		if target == NATarget {
			res.NATargets++
		}
		header := "TICKER=" + ticker + "\nDATE=" + date

		fmt.Fprintf(&txt, "%s\n\nFEATURES:\n%s\n\n%s\n%s\n\n---\n\n", header, featuresText, targetHeader, target)

		if err := cptEnc.Encode(CPTRecord{
			Text: header + "\nFEATURES:\n" + featuresText + "\n" + targetHeader + "\n" + target,
		}); err != nil {
			return nil, fmt.Errorf("failed to encode cpt record: %w", err)
		}
		if err := sftEnc.Encode(SFTRecord{
			Instruction: instruction,
			Input:       header + "\nFEATURES:\n" + featuresText,
			Output:      target,
		}); err != nil {
			return nil, fmt.Errorf("failed to encode sft record: %w", err)
		}

		split := e.split.Of(date)
		if split == "" {
			split = "unassigned"
		}
		res.Splits[split]++
		res.Records++
	}

	for path, buf := range map[string]*bytes.Buffer{res.CPTPath: &cpt, res.SFTPath: &sft, res.PreviewPath: &txt} {
		if err := files.WriteFileAtomic(path, buf.Bytes()); err != nil {
			return nil, err
		}
	}

	e.logger.InfoContext(ctx, "export_complete",
		slog.String("suffix", suffix),
		slog.Int("records", res.Records),
		slog.Int("na_targets", res.NATargets),
		slog.String("cpt", res.CPTPath),
		slog.String("sft", res.SFTPath),
		slog.String("preview", res.PreviewPath))
	return res, nil
}

func newJSONLEncoder(buf *bytes.Buffer) *json.Encoder {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return enc
}
