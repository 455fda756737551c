package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/internal/checkpoint"
	"finset/internal/config"
	"finset/internal/operations"
	"finset/pkg/contracts/domain"
)

var calendarDates = []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type env struct {
	configDir string
	dataDir   string
	paths     *config.Paths
}

// newEnv writes a config dir and a replayable data dir for two tickers
func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{configDir: t.TempDir(), dataDir: t.TempDir()}

	write(t, filepath.Join(e.configDir, "pipeline.yaml"), `run:
  suffix: cli
replay:
  tickers: ["600519.SH", "000001.SZ"]
labels:
  price_interface: prices
`)
	write(t, filepath.Join(e.configDir, config.InterfacesFile), `interfaces:
  - id: prices
    source_domain: local
    freq: D
    scope: per_ticker_history
    avail_rule: same_day
    bootstrap_source: "price_{ticker}.csv"
`)

	cfg := config.Default()
	cfg.Paths.DataDir = e.dataDir
	paths, err := config.NewPaths(cfg)
	require.NoError(t, err)
	e.paths = paths

	write(t, paths.CalendarFile, "trade_date\n"+strings.Join(calendarDates, "\n")+"\n")
	write(t, paths.SmokeDatesFile, "2024-01-02\n2024-01-05\n")
	write(t, paths.UniverseFile, "600519;Kweichow Moutai\n000001;Ping An Bank\n")
	for ticker, start := range map[string]float64{"600519SH": 100, "000001SZ": 10} {
		var b strings.Builder
		b.WriteString("date,adj_close_hfq\n")
		for i, d := range calendarDates {
			b.WriteString(strings.ReplaceAll(d, "-", "") + "," + domain.FormatFloat(start+float64(i)) + "\n")
		}
		write(t, paths.BootstrapPath("price_"+ticker+".csv"), b.String())
	}
	return e
}

// execute runs the command tree once and returns its stdout
func (e *env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rc := &RootConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  checkpoint.NewMemoryStore(),
	}
	cmd := NewWithConfig(rc)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configDir, "--data-dir", e.dataDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out, err := e.execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "finset v"))
}

func TestRunReplay(t *testing.T) {
	e := newEnv(t)

	out, err := e.execute(t, "run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "manifest: ")
	assert.Less(t, strings.Index(out, "fetch"), strings.Index(out, "audit"), "steps print in pipeline order")

	assert.FileExists(t, e.paths.GoldFeaturesFile)
	assert.FileExists(t, e.paths.AuditJSONPath("cli"))
}

func TestStepCommands(t *testing.T) {
	e := newEnv(t)
	_, err := e.execute(t, "run", "--mode", "replay")
	require.NoError(t, err)

	out, err := e.execute(t, "audit", "--suffix", "again")
	require.NoError(t, err, out)
	assert.Contains(t, out, operations.StageIDAudit)
	assert.FileExists(t, e.paths.AuditJSONPath("again"))

	out, err = e.execute(t, "export", "--suffix", "again")
	require.NoError(t, err, out)
	assert.FileExists(t, e.paths.CPTPath("again"))
}

func TestStepWithoutInputsFails(t *testing.T) {
	e := newEnv(t)

	_, err := e.execute(t, "label")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestRunFlagValidation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad date", []string{"run", "--start-date", "2024/01/02"}, "invalid date"},
		{"reversed window", []string{"run", "--start-date", "2024-02-01", "--end-date", "2024-01-01"}, "after end date"},
		{"unknown mode", []string{"run", "--mode", "live"}, "unknown mode"},
		{"stray argument", []string{"assemble", "now"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.execute(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestMissingConfigDir(t *testing.T) {
	e := newEnv(t)
	e.configDir = filepath.Join(t.TempDir(), "nope")

	_, err := e.execute(t, "run")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(assert.AnError))
	assert.Equal(t, 2, ExitCode(operations.NewFatalError("calendar missing", nil)))
}
