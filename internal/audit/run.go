package audit

import (
	"context"
	"fmt"
	"log/slog"

	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// Request locates the gold artifacts to audit and where reports go
type Request struct {
	FeaturesPath string
	LabelsPath   string
	StatsDir     string
	Suffix       string
}

// Result carries the report and the files written for it
type Result struct {
	Report domain.AuditReport `json:"report"`
	Files  *ReportFiles       `json:"files"`
}

// Run merges the persisted gold tables, audits them and writes the reports.
// Lookahead violations are reported, not returned as errors.
func (a *Auditor) Run(ctx context.Context, req Request) (*Result, error) {
	features, err := files.ReadTable(req.FeaturesPath, files.ReadOptions{Comma: ','})
	if err != nil {
		return nil, fmt.Errorf("gold features unavailable: %w", err)
	}
	labels, err := files.ReadTable(req.LabelsPath, files.ReadOptions{Comma: ','})
	if err != nil {
		return nil, fmt.Errorf("gold labels unavailable: %w", err)
	}
	merged, err := Merge(features, labels)
	if err != nil {
		return nil, err
	}

	report := a.Audit(ctx, merged)
	written, err := WriteReport(req.StatsDir, req.Suffix, report)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "audit_report_saved",
		slog.String("json", written.JSON),
		slog.String("workbook", written.Workbook),
		slog.Bool("passed", report.Passed()))
	return &Result{Report: report, Files: written}, nil
}
