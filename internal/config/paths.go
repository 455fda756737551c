package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains every location the pipeline reads or writes.
// All stages resolve their artifacts through it.
type Paths struct {
	DataDir      string
	RawDir       string
	BootstrapDir string
	InputsDir    string
	SilverDir    string
	GoldDir      string
	FeaturesDir  string
	LabelsDir    string
	ExportsDir   string
	CPTDir       string
	SFTDir       string
	TXTDir       string
	StatsDir     string
	ManifestsDir string
	RunsDir      string
	LogsDir      string

	// Well-known files
	CalendarFile     string
	UniverseFile     string
	GoldFeaturesFile string
	GoldLabelsFile   string
	CheckpointFile   string
	MetricsFile      string
	SmokeDatesFile   string
}

// NewPaths resolves the data layout for cfg. Relative directories are
// resolved against the working directory.
func NewPaths(cfg *Config) (*Paths, error) {
	dataDir, err := filepath.Abs(cfg.Paths.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	logsDir := cfg.Paths.LogsDir
	if !filepath.IsAbs(logsDir) {
		logsDir = filepath.Join(dataDir, logsDir)
	}

	raw := filepath.Join(dataDir, RawDirName)
	bootstrap := filepath.Join(raw, BootstrapDirName)
	inputs := filepath.Join(dataDir, InputsDirName)
	gold := filepath.Join(dataDir, GoldDirName)
	exports := filepath.Join(dataDir, ExportsDirName)
	manifests := filepath.Join(dataDir, ManifestsDirName)
	stats := filepath.Join(exports, "stats")

	p := &Paths{
		DataDir:      dataDir,
		RawDir:       raw,
		BootstrapDir: bootstrap,
		InputsDir:    inputs,
		SilverDir:    filepath.Join(dataDir, SilverDirName),
		GoldDir:      gold,
		FeaturesDir:  filepath.Join(gold, "features"),
		LabelsDir:    filepath.Join(gold, "labels"),
		ExportsDir:   exports,
		CPTDir:       filepath.Join(exports, "cpt"),
		SFTDir:       filepath.Join(exports, "sft"),
		TXTDir:       filepath.Join(exports, "txt"),
		StatsDir:     stats,
		ManifestsDir: manifests,
		RunsDir:      filepath.Join(dataDir, RunsDirName),
		LogsDir:      logsDir,
	}

	p.CalendarFile = filepath.Join(bootstrap, CalendarFileName)
	p.UniverseFile = filepath.Join(inputs, cfg.Universe.File)
	p.GoldFeaturesFile = filepath.Join(p.FeaturesDir, GoldFeaturesFileName)
	p.GoldLabelsFile = filepath.Join(p.LabelsDir, GoldLabelsFileName)
	p.CheckpointFile = filepath.Join(manifests, cfg.Fetch.CheckpointFile)
	p.MetricsFile = filepath.Join(stats, cfg.Metrics.Textfile)
	p.SmokeDatesFile = filepath.Join(bootstrap, cfg.Replay.SmokeDatesFile)
	return p, nil
}

// EnsureDirectories creates all output directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.RawDir,
		p.SilverDir,
		p.FeaturesDir,
		p.LabelsDir,
		p.CPTDir,
		p.SFTDir,
		p.TXTDir,
		p.StatsDir,
		p.ManifestsDir,
		p.RunsDir,
		p.LogsDir,
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// SilverPath returns the consolidated silver table for an interface
func (p *Paths) SilverPath(interfaceID string) string {
	return filepath.Join(p.SilverDir, "interface="+interfaceID, SilverFileName)
}

// BootstrapPath returns a file under raw/bootstrap
func (p *Paths) BootstrapPath(name string) string {
	return filepath.Join(p.BootstrapDir, name)
}

// ManifestPath returns the task manifest for a run mode
func (p *Paths) ManifestPath(mode string) string {
	return filepath.Join(p.ManifestsDir, fmt.Sprintf("tasks_%s.json", mode))
}

// RunDir returns the directory holding one run's pipeline manifest
func (p *Paths) RunDir(runID string) string {
	return filepath.Join(p.RunsDir, runID)
}

// RunManifestPath returns the pipeline manifest of a run
func (p *Paths) RunManifestPath(runID string) string {
	return filepath.Join(p.RunDir(runID), RunManifestFileName)
}

// CPTPath returns the CPT export for suffix
func (p *Paths) CPTPath(suffix string) string {
	return filepath.Join(p.CPTDir, fmt.Sprintf("finset_cpt_%s.jsonl", suffix))
}

// SFTPath returns the SFT export for suffix
func (p *Paths) SFTPath(suffix string) string {
	return filepath.Join(p.SFTDir, fmt.Sprintf("finset_sft_%s.jsonl", suffix))
}

// PreviewPath returns the TXT preview for suffix
func (p *Paths) PreviewPath(suffix string) string {
	return filepath.Join(p.TXTDir, fmt.Sprintf("finset_%s_preview.txt", suffix))
}

// AuditJSONPath returns the machine-readable audit report for suffix
func (p *Paths) AuditJSONPath(suffix string) string {
	return filepath.Join(p.StatsDir, fmt.Sprintf("audit_%s.json", suffix))
}

// LogPath returns the path for a log file
func (p *Paths) LogPath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(p.LogsDir, filename)
}

// LogPathResolution logs the resolved layout
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("path_resolution",
		slog.Group("directories",
			slog.String("data", p.DataDir),
			slog.String("raw", p.RawDir),
			slog.String("silver", p.SilverDir),
			slog.String("gold", p.GoldDir),
			slog.String("exports", p.ExportsDir),
			slog.String("manifests", p.ManifestsDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("inputs",
			slog.String("calendar", p.CalendarFile),
			slog.String("universe", p.UniverseFile),
		))
}
