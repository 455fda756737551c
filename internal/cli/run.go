package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finset/internal/operations"
	"finset/internal/pipeline"
)

type runFlags struct {
	mode      string
	startDate string
	endDate   string
	suffix    string
}

func (f *runFlags) bind(cmd *cobra.Command, withMode bool) {
	if withMode {
		cmd.Flags().StringVar(&f.mode, "mode", operations.ModeReplay, "run mode: replay, online or full")
	}
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "first trade date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "last trade date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.suffix, "suffix", "", "suffix for export and audit file names")
}

func (f *runFlags) request() (pipeline.RunRequest, error) {
	for _, d := range []string{f.startDate, f.endDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return pipeline.RunRequest{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
		}
	}
	if f.startDate != "" && f.endDate != "" && f.startDate > f.endDate {
		return pipeline.RunRequest{}, fmt.Errorf("start date %s is after end date %s", f.startDate, f.endDate)
	}
	return pipeline.RunRequest{
		Mode:      f.mode,
		StartDate: f.startDate,
		EndDate:   f.endDate,
		Suffix:    f.suffix,
	}, nil
}

func newRunCmd(rc *RootConfig) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline end to end",
		Long: `Run every step of a mode in dependency order.

  replay  fetch from bootstrap files over the smoke dates, then build everything
  online  probe each HTTP interface once and stop
  full    fetch the whole window over HTTP, then build everything

Example:
  finset run --mode full --start-date 2024-01-02 --end-date 2024-06-28 --suffix h1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			return withPipeline(cmd.Context(), rc, func(ctx context.Context, p *pipeline.Pipeline) error {
				resp, err := p.Run(ctx, req)
				printResponse(cmd.OutOrStdout(), resp)
				return err
			})
		},
	}
	f.bind(cmd, true)
	return cmd
}

func newStepCmd(rc *RootConfig, stepID, short string) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   stepID,
		Short: short,
		Long: short + `.

Runs over the artifacts a previous run left in the data directory and fails
when its inputs are missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			return withPipeline(cmd.Context(), rc, func(ctx context.Context, p *pipeline.Pipeline) error {
				resp, err := p.RunStep(ctx, stepID, req)
				printResponse(cmd.OutOrStdout(), resp)
				return err
			})
		},
	}
	f.bind(cmd, false)
	return cmd
}

func withPipeline(ctx context.Context, rc *RootConfig, fn func(context.Context, *pipeline.Pipeline) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := rc.openPipeline()
	if err != nil {
		return err
	}
	defer p.Close(context.WithoutCancel(ctx))
	return fn(ctx, p)
}

// printResponse writes a step table for resp. A nil resp prints nothing.
func printResponse(w io.Writer, resp *operations.OperationResponse) {
	if resp == nil {
		return
	}
	fmt.Fprintf(w, "run %s %s in %s\n", resp.ID, resp.Status, resp.Duration.Round(time.Millisecond))

	ids := make([]string, 0, len(resp.Steps))
	for id := range resp.Steps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return stepRank(ids[i]) < stepRank(ids[j]) })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tATTEMPTS\tDETAIL")
	for _, id := range ids {
		s := resp.Steps[id]
		detail := s.Message
		if s.ErrorMessage != "" {
			detail = s.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", id, s.Status, s.Attempts, detail)
	}
	tw.Flush()

	if resp.ManifestPath != "" {
		fmt.Fprintf(w, "manifest: %s\n", resp.ManifestPath)
	}
}

var stepOrder = []string{
	operations.StageIDFetch,
	operations.StageIDNormalize,
	operations.StageIDAssemble,
	operations.StageIDLabel,
	operations.StageIDExport,
	operations.StageIDAudit,
}

func stepRank(id string) int {
	for i, s := range stepOrder {
		if s == id {
			return i
		}
	}
	return len(stepOrder)
}
