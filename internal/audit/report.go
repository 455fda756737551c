package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"finset/internal/exporter"
	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// Workbook sheet names
const (
	SheetSummary   = "summary"
	SheetLookahead = "lookahead"
	SheetLabelNA   = "label_na"
)

var summaryHeaders = []string{
	"column", "missing_count", "missing_percentage",
	"count", "mean", "std", "min", "25%", "50%", "75%", "max",
}

// ReportFiles lists the artifacts written for one audit
type ReportFiles struct {
	SummaryCSV string `json:"summary_csv"`
	LabelNACSV string `json:"label_na_csv"`
	JSON       string `json:"json"`
	Workbook   string `json:"workbook"`
}

// WriteReport persists report under dir as CSV, JSON and XLSX files named
// after suffix.
func WriteReport(dir, suffix string, report domain.AuditReport) (*ReportFiles, error) {
	out := &ReportFiles{
		SummaryCSV: filepath.Join(dir, fmt.Sprintf("stats_summary_%s.csv", suffix)),
		LabelNACSV: filepath.Join(dir, fmt.Sprintf("stats_label_na_%s.csv", suffix)),
		JSON:       filepath.Join(dir, fmt.Sprintf("audit_%s.json", suffix)),
		Workbook:   filepath.Join(dir, fmt.Sprintf("audit_%s.xlsx", suffix)),
	}

	w := exporter.NewCSVWriter(nil)
	if err := w.WriteCSV(out.SummaryCSV, exporter.WriteOptions{
		Headers: summaryHeaders,
		Records: summaryRecords(report),
	}); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}
	if err := w.WriteCSV(out.LabelNACSV, exporter.WriteOptions{
		Headers: []string{"label_horizon", "na_label_count"},
		Records: labelNARecords(report),
	}); err != nil {
		return nil, fmt.Errorf("failed to write label NA counts: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit report: %w", err)
	}
	if err := files.WriteFileAtomic(out.JSON, data); err != nil {
		return nil, err
	}

	if err := writeWorkbook(out.Workbook, report); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadReport reads a JSON audit report
func LoadReport(path string) (*domain.AuditReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit report: %w", err)
	}
	var report domain.AuditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode audit report %s: %w", path, err)
	}
	return &report, nil
}

func summaryRecords(report domain.AuditReport) [][]string {
	records := make([][]string, 0, len(report.Columns))
	for _, c := range report.Columns {
		rec := []string{
			c.Column,
			strconv.Itoa(c.MissingCount),
			strconv.FormatFloat(c.MissingPercent, 'f', 2, 64),
		}
		if c.Stats == nil {
			rec = append(rec, "", "", "", "", "", "", "", "")
		} else {
			s := c.Stats
			rec = append(rec, strconv.Itoa(s.Count))
			for _, v := range []float64{s.Mean, s.Std, s.Min, s.P25, s.P50, s.P75, s.Max} {
				rec = append(rec, domain.FormatFloat(v))
			}
		}
		records = append(records, rec)
	}
	return records
}

func labelNARecords(report domain.AuditReport) [][]string {
	records := make([][]string, 0, len(report.LabelNA))
	for _, l := range report.LabelNA {
		records = append(records, []string{l.Horizon, strconv.Itoa(l.Count)})
	}
	return records
}

func writeWorkbook(path string, report domain.AuditReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := writeSheet(f, SheetSummary, summaryHeaders, summaryRecords(report)); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetLookahead); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SheetLookahead, err)
	}
	lookahead := make([][]string, 0, len(report.Lookahead))
	for _, l := range report.Lookahead {
		lookahead = append(lookahead, []string{l.Column, strconv.Itoa(l.Violations)})
	}
	if err := writeSheet(f, SheetLookahead, []string{"column", "violations"}, lookahead); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetLabelNA); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SheetLabelNA, err)
	}
	if err := writeSheet(f, SheetLabelNA, []string{"label_horizon", "na_label_count"}, labelNARecords(report)); err != nil {
		return err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to render workbook: %w", err)
	}
	return files.WriteFileAtomic(path, buf.Bytes())
}

// writeSheet writes headers then records; numeric cells are stored as numbers
func writeSheet(f *excelize.File, sheet string, headers []string, records [][]string) error {
	rows := append([][]string{headers}, records...)
	for i, rec := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(rec))
		for j, v := range rec {
			if n, err := strconv.ParseFloat(v, 64); err == nil && i > 0 {
				values[j] = n
			} else {
				values[j] = v
			}
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
