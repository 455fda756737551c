// Package pipeline wires configuration, observability and the stage
// implementations into an operations manager for each run mode.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"finset/internal/assembly"
	"finset/internal/audit"
	"finset/internal/checkpoint"
	"finset/internal/config"
	"finset/internal/exporter"
	"finset/internal/infrastructure"
	"finset/internal/ingest"
	"finset/internal/labeling"
	"finset/internal/normalize"
	"finset/internal/operations"
)

// Options are the command-line overrides applied on top of the config dir
type Options struct {
	ConfigDir string
	DataDir   string
	LogLevel  string

	// Logger replaces the process logger built from the logging config
	Logger *slog.Logger
	// Store replaces the SQLite checkpoint log
	Store checkpoint.Store
}

// RunRequest selects what a run does. Empty dates and suffix fall back to
// the configured run window.
type RunRequest struct {
	Mode      string
	StartDate string
	EndDate   string
	Suffix    string
}

// Pipeline holds everything a run needs
type Pipeline struct {
	Config  *config.Config
	Paths   *config.Paths
	Logger  *slog.Logger
	Metrics *infrastructure.Metrics
	OTel    *infrastructure.OTelProviders
	Deps    *operations.StageDeps

	opsConfig *operations.Config
	observer  operations.StageObserver
	store     checkpoint.Store
	ownLogger bool
}

// LoadConfig reads the config dir and applies the flag overrides
func LoadConfig(opts Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigDir)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.Paths.DataDir = opts.DataDir
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(opts.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.ResolveProxy(opts.ConfigDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New builds the pipeline for cfg
func New(cfg *config.Config, opts Options) (*Pipeline, error) {
	paths, err := config.NewPaths(cfg)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create data directories: %w", err)
	}

	p := &Pipeline{Config: cfg, Paths: paths, Logger: opts.Logger}
	if p.Logger == nil {
		logCfg := cfg.Logging
		logCfg.FilePath = paths.LogPath(logCfg.FilePath)
		if p.Logger, err = infrastructure.InitializeLogger(logCfg); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		p.ownLogger = true
	}
	paths.LogPathResolution(p.Logger)

	p.Metrics = infrastructure.NewMetrics(cfg.Metrics.Namespace)
	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.EnableTracing = cfg.Metrics.Tracing
	otelCfg.EnableMetrics = cfg.Metrics.Enabled
	otelCfg.Registerer = p.Metrics.Registry
	if p.OTel, err = infrastructure.InitializeOTel(otelCfg, p.Logger); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	p.store = opts.Store
	if p.store == nil {
		if p.store, err = checkpoint.NewSQLite(paths.CheckpointFile); err != nil {
			return nil, err
		}
	}

	transports, err := p.transports()
	if err != nil {
		p.store.Close()
		return nil, err
	}

	labeler := labeling.NewLabeler(p.Logger)
	labeler.Horizons = cfg.Labels.Horizons
	labeler.ClipBps = cfg.Labels.ClipBps
	labeler.PriceColumn = cfg.Labels.PriceColumn

	p.Deps = &operations.StageDeps{
		Config:     cfg,
		Paths:      paths,
		Planner:    ingest.NewPlanner(cfg, paths, p.Logger),
		Transports: transports,
		Normalizer: normalize.NewNormalizer(cfg.Interfaces, paths, p.Metrics, p.Logger),
		Assembler:  assembly.NewAssembler(p.Logger),
		Labeler:    labeler,
		Exporter:   exporter.NewExporter(paths, cfg.Export, cfg.Split, p.Logger),
		Auditor:    audit.NewAuditor(p.Logger),
		Metrics:    p.Metrics,
		Logger:     p.Logger,
	}
	p.opsConfig = operations.NewConfigBuilder().
		WithManifestDir(paths.RunsDir).
		WithStageTimeout(operations.StageIDFetch, config.FetchStageTimeout).
		Build()
	p.observer = operations.NewOperationTracer(p.OTel, p.Metrics)
	return p, nil
}

// transports maps run modes to their fetch transport. Online and full runs
// share the HTTP transport and its checkpoint log.
func (p *Pipeline) transports() (map[string]ingest.Transport, error) {
	registry, err := ingest.NewRegistry(p.Config.Interfaces)
	if err != nil {
		return nil, err
	}
	httpTransport, err := ingest.NewHTTPTransport(ingest.HTTPOptions{
		Registry:   registry,
		RateLimits: p.Config.RateLimits,
		Fetch:      p.Config.Fetch,
		Proxy:      ingest.NewProxy(p.Config.Proxy),
		Store:      p.store,
		Metrics:    p.Metrics,
		Logger:     p.Logger,
	})
	if err != nil {
		return nil, err
	}
	return map[string]ingest.Transport{
		operations.ModeReplay: ingest.NewReplayTransport(p.Logger),
		operations.ModeOnline: httpTransport,
		operations.ModeFull:   httpTransport,
	}, nil
}

// Steps returns the steps a mode runs, in registration order
func (p *Pipeline) Steps(mode string) []operations.Step {
	if mode == operations.ModeOnline {
		return []operations.Step{operations.NewFetchStage(p.Deps)}
	}
	return []operations.Step{
		operations.NewFetchStage(p.Deps),
		operations.NewNormalizeStage(p.Deps),
		operations.NewAssembleStage(p.Deps),
		operations.NewLabelStage(p.Deps),
		operations.NewExportStage(p.Deps),
		operations.NewAuditStage(p.Deps),
	}
}

func (p *Pipeline) manager(mode string) (*operations.Manager, error) {
	m := operations.NewManager(operations.NewRegistry(), p.opsConfig, p.Logger)
	for _, step := range p.Steps(mode) {
		if err := m.RegisterStage(step); err != nil {
			return nil, err
		}
	}
	m.SetObserver(p.observer)
	return m, nil
}

// Run executes every step of req.Mode and writes the metrics textfile
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*operations.OperationResponse, error) {
	switch req.Mode {
	case operations.ModeReplay, operations.ModeOnline, operations.ModeFull:
	default:
		return nil, fmt.Errorf("unknown mode %q (want replay, online or full)", req.Mode)
	}
	req = p.resolve(req)

	m, err := p.manager(req.Mode)
	if err != nil {
		return nil, err
	}
	p.Logger.InfoContext(ctx, "run_requested",
		slog.String("mode", req.Mode),
		slog.String("start_date", req.StartDate),
		slog.String("end_date", req.EndDate),
		slog.String("suffix", req.Suffix))

	resp, err := m.Execute(ctx, operations.OperationRequest{
		Mode:      req.Mode,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Suffix:    req.Suffix,
	})
	p.writeMetrics(ctx)
	return resp, err
}

// RunStep executes a single step over artifacts already on disk
func (p *Pipeline) RunStep(ctx context.Context, stepID string, req RunRequest) (*operations.OperationResponse, error) {
	if req.Mode == "" {
		req.Mode = operations.ModeReplay
	}
	req = p.resolve(req)

	m, err := p.manager(req.Mode)
	if err != nil {
		return nil, err
	}
	manifest := operations.NewPipelineManifest("", req.Mode, req.StartDate, req.EndDate, req.Suffix)
	operations.SeedManifest(manifest, p.Config, p.Paths)

	resp, err := m.ExecuteWithManifest(ctx, operations.OperationRequest{
		Mode:       req.Mode,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Suffix:     req.Suffix,
		Parameters: map[string]interface{}{operations.ContextKeyStep: stepID},
	}, manifest)
	p.writeMetrics(ctx)
	return resp, err
}

// resolve fills the run window. Replay runs cover the smoke dates.
func (p *Pipeline) resolve(req RunRequest) RunRequest {
	if req.Suffix == "" {
		req.Suffix = p.Config.Run.Suffix
	}
	if req.Mode == operations.ModeOnline {
		return req
	}
	if req.StartDate == "" && req.EndDate == "" && req.Mode == operations.ModeReplay {
		dates := ingest.SmokeDates(p.Paths.SmokeDatesFile, p.Config.Replay.FallbackDates, p.Logger)
		if len(dates) > 0 {
			req.StartDate, req.EndDate = dates[0], dates[len(dates)-1]
		}
	}
	if req.StartDate == "" {
		req.StartDate = p.Config.Run.StartDate
	}
	if req.EndDate == "" {
		req.EndDate = p.Config.Run.EndDate
	}
	return req
}

func (p *Pipeline) writeMetrics(ctx context.Context) {
	if !p.Config.Metrics.Enabled {
		return
	}
	if err := p.Metrics.WriteTextfile(p.Paths.MetricsFile); err != nil {
		p.Logger.WarnContext(ctx, "metrics_write_failed",
			slog.String("path", p.Paths.MetricsFile),
			slog.String("error", err.Error()))
	}
}

// Close releases the checkpoint log, flushes telemetry and closes the log file
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.OTel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.ownLogger {
		if err := infrastructure.CloseLogFile(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("pipeline close: %v", errs)
	}
	return nil
}
