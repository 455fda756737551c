package cli

import (
	"context"

	"github.com/spf13/cobra"

	"finset/internal/app"
	"finset/internal/pipeline"
)

func newServeCmd(rc *RootConfig) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run manifests, audit reports and metrics over HTTP",
		Long: `Start the read-only report server over the data directory.

  GET /healthz
  GET /metrics
  GET /api/v1/runs
  GET /api/v1/runs/{id}
  GET /api/v1/audit/{suffix}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd.Context(), rc, func(ctx context.Context, p *pipeline.Pipeline) error {
				if cmd.Flags().Changed("port") {
					p.Config.Server.Port = port
				}
				a, err := app.NewApplication(p)
				if err != nil {
					return err
				}
				return a.Run(ctx)
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from server.port)")
	return cmd
}
