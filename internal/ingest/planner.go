package ingest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"finset/internal/calendar"
	"finset/internal/config"
	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// Interface scopes that drive planning
const (
	ScopeMarketWideSingleDay = "market_wide_single_day"
	ScopePerTickerHistory    = "per_ticker_history"
)

// Run modes, also used to name manifests
const (
	ModeReplay = "replay"
	ModeOnline = "online"
	ModeFull   = "full"
)

const staticPartition = "static"

// Manifest is the persisted task list of one run mode
type Manifest struct {
	Mode      string             `json:"mode"`
	CreatedAt time.Time          `json:"created_at"`
	Tasks     []domain.FetchTask `json:"tasks"`
}

// Planner builds fetch manifests from the interface configuration
type Planner struct {
	cfg    *config.Config
	paths  *config.Paths
	logger *slog.Logger
}

// NewPlanner creates a planner
func NewPlanner(cfg *config.Config, paths *config.Paths, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		cfg:    cfg,
		paths:  paths,
		logger: logger.With(slog.String("component", "planner")),
	}
}

// TaskID is hex(sha256(iface + "-" + canonical params)). Params are encoded
// as a JSON object with sorted keys in the "key": "value" layout, so the id
// does not depend on map order.
func TaskID(interfaceID string, params map[string]string) string {
	sum := sha256.Sum256([]byte(interfaceID + "-" + canonicalParams(params)))
	return hex.EncodeToString(sum[:])
}

func canonicalParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(params[k])
		b.Write(kb)
		b.WriteString(": ")
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// OutputPath is the raw partition file for a task
func (p *Planner) OutputPath(sourceDomain, interfaceID, taskID string, params map[string]string) string {
	date := staticPartition
	if d := params["date"]; d != "" {
		date = strings.ReplaceAll(d, "-", "")
	}
	return filepath.Join(p.paths.RawDir,
		"source_domain="+sourceDomain,
		"interface="+interfaceID,
		"date="+date,
		fmt.Sprintf("part-%s.csv", taskID[:10]))
}

// newTask fills id, domain and output path
func (p *Planner) newTask(iface config.Interface, ticker, scope string, params map[string]string) domain.FetchTask {
	sourceDomain := iface.SourceDomain
	if sourceDomain == "" {
		sourceDomain = config.DefaultDomain
	}
	id := TaskID(iface.ID, params)
	return domain.FetchTask{
		TaskID:       id,
		InterfaceID:  iface.ID,
		SourceDomain: sourceDomain,
		Ticker:       ticker,
		Scope:        scope,
		Params:       params,
		OutputPath:   p.OutputPath(sourceDomain, iface.ID, id, params),
		Status:       domain.TaskStatusPending,
	}
}

// ReplayPlan creates one task per bootstrap file. Sources with a {ticker}
// placeholder get one task per ticker, the dot stripped from the file name.
func (p *Planner) ReplayPlan(tickers []string) []domain.FetchTask {
	var tasks []domain.FetchTask
	for _, iface := range p.cfg.Interfaces {
		if iface.BootstrapSource == "" {
			continue
		}
		if !strings.Contains(iface.BootstrapSource, "{ticker}") {
			t := p.newTask(iface, "", iface.Scope, nil)
			t.ReplayPath = p.paths.BootstrapPath(iface.BootstrapSource)
			tasks = append(tasks, t)
			continue
		}
		for _, ticker := range tickers {
			name := strings.ReplaceAll(iface.BootstrapSource, "{ticker}", strings.ReplaceAll(ticker, ".", ""))
			t := p.newTask(iface, ticker, iface.Scope, map[string]string{"ticker": ticker})
			t.ReplayPath = p.paths.BootstrapPath(name)
			tasks = append(tasks, t)
		}
	}
	p.logger.Info("manifest_created", slog.String("mode", ModeReplay), slog.Int("tasks", len(tasks)))
	return tasks
}

// OnlinePlan is the single configured probe task
func (p *Planner) OnlinePlan() ([]domain.FetchTask, error) {
	iface, ok := p.cfg.Interface(p.cfg.Online.ProbeInterface)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInterface, p.cfg.Online.ProbeInterface)
	}
	params := make(map[string]string, len(p.cfg.Online.ProbeParams))
	for k, v := range p.cfg.Online.ProbeParams {
		params[k] = v
	}
	tasks := []domain.FetchTask{p.newTask(iface, "", iface.Scope, params)}
	p.logger.Info("manifest_created", slog.String("mode", ModeOnline), slog.Int("tasks", len(tasks)))
	return tasks, nil
}

// FullPlan creates one task per trading date in [start, end] for market-wide
// daily interfaces and one history task per ticker for per-ticker interfaces.
// Interfaces flagged hyphen_date receive ISO dates, others yyyymmdd.
func (p *Planner) FullPlan(cal *calendar.Calendar, tickers []string, start, end string) ([]domain.FetchTask, error) {
	window, err := cal.Slice(start, end)
	if err != nil {
		return nil, err
	}

	var tasks []domain.FetchTask
	for _, iface := range p.cfg.Interfaces {
		switch iface.Scope {
		case ScopeMarketWideSingleDay:
			for _, d := range window.Dates() {
				param := strings.ReplaceAll(d, "-", "")
				if iface.HyphenDate {
					param = d
				}
				tasks = append(tasks, p.newTask(iface, "", iface.Scope, map[string]string{"date": param}))
			}
		case ScopePerTickerHistory:
			for _, ticker := range tickers {
				code, _, _ := strings.Cut(ticker, ".")
				tasks = append(tasks, p.newTask(iface, ticker, iface.Scope, map[string]string{
					"symbol":     code,
					"start_date": strings.ReplaceAll(window.First(), "-", ""),
					"end_date":   strings.ReplaceAll(window.Last(), "-", ""),
				}))
			}
		}
	}
	if len(tasks) == 0 {
		p.logger.Warn("manifest_empty", slog.String("mode", ModeFull))
	}
	p.logger.Info("manifest_created",
		slog.String("mode", ModeFull),
		slog.String("start_date", start),
		slog.String("end_date", end),
		slog.Int("tasks", len(tasks)))
	return tasks, nil
}

// SaveManifest writes tasks to manifests/tasks_<mode>.json
func (p *Planner) SaveManifest(mode string, tasks []domain.FetchTask) (string, error) {
	m := Manifest{Mode: mode, CreatedAt: time.Now().UTC(), Tasks: tasks}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := p.paths.ManifestPath(mode)
	if err := files.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	p.logger.Info("manifest_saved", slog.String("path", path), slog.Int("tasks", len(tasks)))
	return path, nil
}

// LoadManifest reads a saved manifest
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// SmokeDates reads the replay window from path, one date per line. A
// missing file yields the fallback dates.
func SmokeDates(path string, fallback []string, logger *slog.Logger) []string {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("smoke_dates_fallback",
			slog.String("path", path),
			slog.Any("dates", fallback))
		return fallback
	}
	defer f.Close()

	var dates []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			dates = append(dates, line)
		}
	}
	if len(dates) == 0 {
		return fallback
	}
	return dates
}
