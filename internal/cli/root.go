// Package cli holds the cobra command tree of the finset binary.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"finset/internal/checkpoint"
	"finset/internal/operations"
	"finset/internal/pipeline"
)

// RootConfig carries the persistent flags to every subcommand
type RootConfig struct {
	ConfigDir string
	DataDir   string
	LogLevel  string

	// Logger and Store replace the configured ones; tests set them
	Logger *slog.Logger
	Store  checkpoint.Store
}

// New builds the finset command tree
func New() *cobra.Command {
	return NewWithConfig(&RootConfig{})
}

// NewWithConfig builds the command tree over rc
func NewWithConfig(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finset",
		Short: "Build point-in-time financial feature and label datasets",
		Long: `finset fetches per-interface source data, normalizes it into silver tables,
joins it as-of onto a (trade date, ticker) grid, attaches forward-return
labels and exports CPT/SFT training files with a look-ahead audit.

Data lives under the configured data directory:
  raw/ silver/ gold/{features,labels}/ exports/{cpt,sft,txt,stats}/ manifests/`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&rc.ConfigDir, "config", "configs", "config directory holding pipeline.yaml and interfaces.yaml")
	flags.StringVar(&rc.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&rc.DataDir, "data-dir", "", "data directory override")

	cmd.AddCommand(
		newRunCmd(rc),
		newStepCmd(rc, operations.StageIDAssemble, "Join silver tables as-of onto the trade-date × ticker grid"),
		newStepCmd(rc, operations.StageIDLabel, "Compute forward-return labels from the gold features"),
		newStepCmd(rc, operations.StageIDExport, "Write CPT, SFT and preview exports from the gold tables"),
		newStepCmd(rc, operations.StageIDAudit, "Audit the gold tables for look-ahead and coverage"),
		newServeCmd(rc),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the command tree with the process arguments
func Execute(ctx context.Context) error {
	return New().ExecuteContext(ctx)
}

// openPipeline loads the config dir and builds a pipeline. The caller closes it.
func (rc *RootConfig) openPipeline() (*pipeline.Pipeline, error) {
	opts := pipeline.Options{
		ConfigDir: rc.ConfigDir,
		DataDir:   rc.DataDir,
		LogLevel:  rc.LogLevel,
		Logger:    rc.Logger,
		Store:     rc.Store,
	}
	cfg, err := pipeline.LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, opts)
}

// ExitCode maps a command error onto the process exit status. Fatal
// pipeline errors (missing calendar or universe) exit 2.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case operations.IsFatal(err):
		return 2
	default:
		return 1
	}
}
