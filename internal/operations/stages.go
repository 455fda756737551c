package operations

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"finset/internal/assembly"
	"finset/internal/audit"
	"finset/internal/calendar"
	"finset/internal/config"
	"finset/internal/exporter"
	"finset/internal/files"
	"finset/internal/infrastructure"
	"finset/internal/ingest"
	"finset/internal/labeling"
	"finset/internal/normalize"
	"finset/internal/universe"
	"finset/pkg/contracts/domain"
)

// StageDeps are the collaborators shared by the pipeline steps
type StageDeps struct {
	Config *config.Config
	Paths  *config.Paths

	Planner *ingest.Planner
	// Transports maps a run mode to the transport that serves it
	Transports map[string]ingest.Transport

	Normalizer *normalize.Normalizer
	Assembler  *assembly.Assembler
	Labeler    *labeling.Labeler
	Exporter   *exporter.Exporter
	Auditor    *audit.Auditor

	Metrics *infrastructure.Metrics
	Logger  *slog.Logger
}

func (d *StageDeps) logger(stepID string) *slog.Logger {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("step", stepID))
}

// FetchStage plans the run's tasks and downloads them to raw/
type FetchStage struct {
	BaseStage
	deps   *StageDeps
	logger *slog.Logger
}

// NewFetchStage creates the fetch step
func NewFetchStage(deps *StageDeps) *FetchStage {
	s := &FetchStage{
		BaseStage: NewBaseStage(StageIDFetch, StageNameFetch, nil),
		deps:      deps,
		logger:    deps.logger(StageIDFetch),
	}
	s.Produces(DataOutput{Type: DataTypeRaw, Location: deps.Paths.RawDir, Pattern: "*.csv"})
	return s
}

// Validate checks that the requested mode has a transport
func (s *FetchStage) Validate(state *OperationState) error {
	mode := state.ConfigString(ContextKeyMode)
	if _, ok := s.deps.Transports[mode]; !ok {
		return fmt.Errorf("no transport for mode %q", mode)
	}
	return nil
}

// Execute builds the task manifest for the mode and fetches it
func (s *FetchStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStage(s.ID())
	mode := state.ConfigString(ContextKeyMode)

	tasks, err := s.plan(state, mode)
	if err != nil {
		return err
	}
	manifestPath, err := s.deps.Planner.SaveManifest(mode, tasks)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "task_manifest_saved",
		slog.String("mode", mode),
		slog.String("path", manifestPath),
		slog.Int("tasks", len(tasks)))
	stepState.UpdateProgress(10, fmt.Sprintf("%d tasks planned", len(tasks)))

	results, err := s.deps.Transports[mode].Fetch(ctx, tasks)
	if err != nil {
		return err
	}
	if len(results) == 0 && len(tasks) > 0 {
		return fmt.Errorf("none of %d fetch tasks produced data", len(tasks))
	}

	state.SetContext(ContextKeyFetchResults, results)
	raw := make([]string, 0, len(results))
	for _, r := range results {
		raw = append(raw, r.RawPath)
	}
	state.Manifest.AddFiles(DataTypeRaw, s.ID(), raw...)

	stepState.SetMetadata("task_manifest", manifestPath)
	stepState.SetMetadata("tasks", len(tasks))
	stepState.SetMetadata("fetched", len(results))
	return nil
}

func (s *FetchStage) plan(state *OperationState, mode string) ([]domain.FetchTask, error) {
	cfg := s.deps.Config
	switch mode {
	case ModeReplay:
		return s.deps.Planner.ReplayPlan(cfg.Replay.Tickers), nil
	case ModeOnline:
		return s.deps.Planner.OnlinePlan()
	case ModeFull:
		start, end := state.ConfigString(ContextKeyStartDate), state.ConfigString(ContextKeyEndDate)
		cal, err := calendar.Load(s.deps.Paths.CalendarFile, start, end)
		if err != nil {
			return nil, err
		}
		u, err := universe.Load(s.deps.Paths.UniverseFile, cfg.Universe.ExchangePolicy)
		if err != nil {
			return nil, err
		}
		return s.deps.Planner.FullPlan(cal, u, start, end)
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// NormalizeStage turns raw files into one silver table per interface
type NormalizeStage struct {
	BaseStage
	deps   *StageDeps
	logger *slog.Logger
}

// NewNormalizeStage creates the normalize step
func NewNormalizeStage(deps *StageDeps) *NormalizeStage {
	s := &NormalizeStage{
		BaseStage: NewBaseStage(StageIDNormalize, StageNameNormalize, []string{StageIDFetch}),
		deps:      deps,
		logger:    deps.logger(StageIDNormalize),
	}
	s.Requires(DataRequirement{Type: DataTypeRaw, MinCount: 1})
	s.Produces(DataOutput{Type: DataTypeSilver, Location: deps.Paths.SilverDir, Pattern: "data.csv"})
	return s
}

// Execute normalizes the fetched results. Without in-memory results the
// persisted task manifest of the mode is used.
func (s *NormalizeStage) Execute(ctx context.Context, state *OperationState) error {
	results, err := s.results(state)
	if err != nil {
		return err
	}
	cal, err := calendar.Load(s.deps.Paths.CalendarFile, "", "")
	if err != nil {
		return err
	}

	silver, err := s.deps.Normalizer.Process(ctx, results, cal)
	if err != nil {
		return err
	}
	if len(silver) == 0 {
		return fmt.Errorf("no silver tables produced from %d raw files", len(results))
	}
	state.SetContext(ContextKeySilver, silver)
	state.SetContext(ContextKeyCalendar, cal)
	state.Manifest.AddFiles(DataTypeSilver, s.ID(), sortedValues(silver)...)

	state.GetStage(s.ID()).SetMetadata("interfaces", len(silver))
	return nil
}

func (s *NormalizeStage) results(state *OperationState) ([]domain.FetchResult, error) {
	if v, ok := state.GetContext(ContextKeyFetchResults); ok {
		if results, ok := v.([]domain.FetchResult); ok {
			return results, nil
		}
	}

	mode := state.ConfigString(ContextKeyMode)
	m, err := ingest.LoadManifest(s.deps.Paths.ManifestPath(mode))
	if err != nil {
		return nil, err
	}
	var results []domain.FetchResult
	for _, t := range m.Tasks {
		if files.FileExists(t.OutputPath) {
			results = append(results, domain.FetchResult{Task: t, RawPath: t.OutputPath})
		}
	}
	s.logger.Info("fetch_results_loaded",
		slog.String("manifest", s.deps.Paths.ManifestPath(mode)),
		slog.Int("available", len(results)),
		slog.Int("tasks", len(m.Tasks)))
	return results, nil
}

// AssembleStage builds the grid and joins the silver sources into gold features
type AssembleStage struct {
	BaseStage
	deps   *StageDeps
	logger *slog.Logger
}

// NewAssembleStage creates the assemble step
func NewAssembleStage(deps *StageDeps) *AssembleStage {
	s := &AssembleStage{
		BaseStage: NewBaseStage(StageIDAssemble, StageNameAssemble, []string{StageIDNormalize}),
		deps:      deps,
		logger:    deps.logger(StageIDAssemble),
	}
	s.Requires(DataRequirement{Type: DataTypeSilver, MinCount: 1})
	s.Produces(DataOutput{Type: DataTypeGoldFeatures, Location: deps.Paths.FeaturesDir, Pattern: "*.csv"})
	return s
}

// Execute runs the as-of join engine over the run's date range
func (s *AssembleStage) Execute(ctx context.Context, state *OperationState) error {
	cfg := s.deps.Config
	silver := SilverTables(state, cfg, s.deps.Paths)

	freqs := make(map[string]domain.Frequency, len(cfg.Interfaces))
	for _, iface := range cfg.Interfaces {
		freqs[iface.ID] = domain.ParseFrequency(iface.Freq)
	}

	res, err := s.deps.Assembler.Assemble(ctx, assembly.Request{
		CalendarPath: s.deps.Paths.CalendarFile,
		UniversePath: s.deps.Paths.UniverseFile,
		StartDate:    state.ConfigString(ContextKeyStartDate),
		EndDate:      state.ConfigString(ContextKeyEndDate),
		Policy:       cfg.Universe.ExchangePolicy,
		Silver:       silver,
		Frequencies:  freqs,
		OutputPath:   s.deps.Paths.GoldFeaturesFile,
	})
	if err != nil {
		return err
	}

	if m := s.deps.Metrics; m != nil {
		for _, src := range res.Sources {
			status := "joined"
			if !src.Joined {
				status = "failed"
			}
			m.SourcesJoined.WithLabelValues(src.InterfaceID, status).Inc()
		}
		m.GoldRows.Set(float64(res.Rows))
	}
	state.Manifest.AddFiles(DataTypeGoldFeatures, s.ID(), res.OutputPath)

	stepState := state.GetStage(s.ID())
	stepState.SetMetadata("rows", res.Rows)
	stepState.SetMetadata("columns", res.Columns)
	stepState.SetMetadata("failed_sources", res.Failed())
	return nil
}

// SilverTables returns the silver table of every configured interface, from
// the normalize step when it ran and from disk otherwise
func SilverTables(state *OperationState, cfg *config.Config, paths *config.Paths) map[string]string {
	if v, ok := state.GetContext(ContextKeySilver); ok {
		if silver, ok := v.(map[string]string); ok {
			return silver
		}
	}
	silver := make(map[string]string)
	for _, iface := range cfg.Interfaces {
		p := paths.SilverPath(iface.ID)
		if files.FileExists(p) {
			silver[iface.ID] = p
		}
	}
	return silver
}

// LabelStage computes forward returns for every gold row
type LabelStage struct {
	BaseStage
	deps   *StageDeps
	logger *slog.Logger
}

// NewLabelStage creates the label step
func NewLabelStage(deps *StageDeps) *LabelStage {
	s := &LabelStage{
		BaseStage: NewBaseStage(StageIDLabel, StageNameLabel, []string{StageIDAssemble}),
		deps:      deps,
		logger:    deps.logger(StageIDLabel),
	}
	s.Requires(DataRequirement{Type: DataTypeGoldFeatures, MinCount: 1})
	s.Produces(DataOutput{Type: DataTypeGoldLabels, Location: deps.Paths.LabelsDir, Pattern: "*.csv"})
	return s
}

// Execute labels the persisted gold features
func (s *LabelStage) Execute(ctx context.Context, state *OperationState) error {
	paths := s.deps.Paths
	res, err := s.deps.Labeler.Run(ctx, labeling.Request{
		GoldPath:     paths.GoldFeaturesFile,
		PricePath:    paths.SilverPath(s.deps.Config.Labels.PriceInterface),
		CalendarPath: paths.CalendarFile,
		OutputPath:   paths.GoldLabelsFile,
	})
	if err != nil {
		return err
	}

	if m := s.deps.Metrics; m != nil {
		m.RowsLabeled.Add(float64(res.Rows))
		for _, h := range s.deps.Labeler.Horizons {
			key := fmt.Sprintf("%dd", h)
			m.LabelNA.WithLabelValues(key).Set(float64(res.NACounts[key]))
		}
	}
	state.Manifest.AddFiles(DataTypeGoldLabels, s.ID(), res.OutputPath)

	stepState := state.GetStage(s.ID())
	stepState.SetMetadata("rows", res.Rows)
	stepState.SetMetadata("na_counts", res.NACounts)
	return nil
}

// ExportStage renders the CPT, SFT and preview files
type ExportStage struct {
	BaseStage
	deps   *StageDeps
	logger *slog.Logger
}

// NewExportStage creates the export step
func NewExportStage(deps *StageDeps) *ExportStage {
	s := &ExportStage{
		BaseStage: NewBaseStage(StageIDExport, StageNameExport, []string{StageIDLabel}),
		deps:      deps,
		logger:    deps.logger(StageIDExport),
	}
	s.Requires(
		DataRequirement{Type: DataTypeGoldFeatures, MinCount: 1},
		DataRequirement{Type: DataTypeGoldLabels, MinCount: 1},
	)
	s.Produces(DataOutput{Type: DataTypeExports, Location: deps.Paths.ExportsDir, Pattern: "*.jsonl"})
	return s
}

// Execute exports the merged gold tables under the run suffix
func (s *ExportStage) Execute(ctx context.Context, state *OperationState) error {
	res, err := s.deps.Exporter.Export(ctx, exporter.Request{
		FeaturesPath: s.deps.Paths.GoldFeaturesFile,
		LabelsPath:   s.deps.Paths.GoldLabelsFile,
		Suffix:       suffixOf(state, s.deps.Config),
	})
	if err != nil {
		return err
	}

	if m := s.deps.Metrics; m != nil {
		for _, format := range []string{"cpt", "sft"} {
			m.RecordsExported.WithLabelValues(format).Add(float64(res.Records))
		}
	}
	state.Manifest.AddFiles(DataTypeExports, s.ID(), res.CPTPath, res.SFTPath, res.PreviewPath)

	stepState := state.GetStage(s.ID())
	stepState.SetMetadata("records", res.Records)
	stepState.SetMetadata("na_targets", res.NATargets)
	stepState.SetMetadata("splits", res.Splits)
	return nil
}

// AuditStage checks the gold tables for lookahead and writes the reports
type AuditStage struct {
	BaseStage
	deps   *StageDeps
	logger *slog.Logger
}

// NewAuditStage creates the audit step
func NewAuditStage(deps *StageDeps) *AuditStage {
	s := &AuditStage{
		BaseStage: NewBaseStage(StageIDAudit, StageNameAudit, []string{StageIDLabel}),
		deps:      deps,
		logger:    deps.logger(StageIDAudit),
	}
	s.Requires(
		DataRequirement{Type: DataTypeGoldFeatures, MinCount: 1},
		DataRequirement{Type: DataTypeGoldLabels, MinCount: 1},
	)
	s.Produces(DataOutput{Type: DataTypeStats, Location: deps.Paths.StatsDir, Pattern: "audit_*"})
	return s
}

// Execute audits the gold tables. Violations are reported, never fatal.
func (s *AuditStage) Execute(ctx context.Context, state *OperationState) error {
	res, err := s.deps.Auditor.Run(ctx, audit.Request{
		FeaturesPath: s.deps.Paths.GoldFeaturesFile,
		LabelsPath:   s.deps.Paths.GoldLabelsFile,
		StatsDir:     s.deps.Paths.StatsDir,
		Suffix:       suffixOf(state, s.deps.Config),
	})
	if err != nil {
		return err
	}

	if m := s.deps.Metrics; m != nil {
		for _, l := range res.Report.Lookahead {
			m.LookaheadViolations.WithLabelValues(l.Column).Set(float64(l.Violations))
		}
	}
	f := res.Files
	state.Manifest.AddFiles(DataTypeStats, s.ID(), f.JSON, f.SummaryCSV, f.LabelNACSV, f.Workbook)

	stepState := state.GetStage(s.ID())
	stepState.SetMetadata("lookahead_violations", res.Report.TotalViolations())
	stepState.SetMetadata("passed", res.Report.Passed())
	return nil
}

func suffixOf(state *OperationState, cfg *config.Config) string {
	if s := state.ConfigString(ContextKeySuffix); s != "" {
		return s
	}
	return cfg.Run.Suffix
}

func sortedValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SeedManifest records artifacts already on disk so single steps can run
// against the output of an earlier run
func SeedManifest(m *PipelineManifest, cfg *config.Config, paths *config.Paths) {
	if _, err := os.Stat(paths.RawDir); err == nil {
		_ = m.ScanDataDirectory(DataTypeRaw, paths.RawDir, ".csv", "")
		if info, ok := m.GetData(DataTypeRaw); ok && info.FileCount == 0 {
			m.RemoveData(DataTypeRaw)
		}
	}
	silver := make([]string, 0)
	for _, iface := range cfg.Interfaces {
		if p := paths.SilverPath(iface.ID); files.FileExists(p) {
			silver = append(silver, p)
		}
	}
	if len(silver) > 0 {
		m.AddFiles(DataTypeSilver, "", silver...)
	}
	if files.FileExists(paths.GoldFeaturesFile) {
		m.AddFiles(DataTypeGoldFeatures, "", paths.GoldFeaturesFile)
	}
	if files.FileExists(paths.GoldLabelsFile) {
		m.AddFiles(DataTypeGoldLabels, "", paths.GoldLabelsFile)
	}
}
