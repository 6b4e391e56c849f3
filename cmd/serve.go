package cmd

import (
	"github.com/spf13/cobra"

	"github.com/s0up4200/posterarr/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and scheduled runs",
	Long: `Serve health, metrics, status and history endpoints and trigger runs over
HTTP or on the configured schedule.

  GET  /healthz       liveness
  GET  /metrics       prometheus metrics
  GET  /api/status    cooldowns, quota, cache size and the last run
  POST /api/run       start a run (409 while one is active)
  GET  /api/history   recent changes`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringSliceVarP(&libraries, "library", "l", nil, "library names to process (default: all movie and TV libraries)")
	serveCmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "filter expression")
	serveCmd.Flags().StringVarP(&preset, "preset", "p", "", "use a preset filter from config")
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(filterSelection{expression: filterExpr, preset: preset})
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	eng.cleanup(ctx)

	names := libraries
	if len(names) == 0 {
		names = cfg.Artwork.Libraries
	}

	srv := server.New(eng.processor, server.Config{
		Addr:        cfg.Server.Addr,
		Libraries:   names,
		Interval:    cfg.Schedule.Interval,
		RunOnStart:  cfg.Schedule.RunOnStart,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
	}, logger, server.WithHistory(eng.history), server.WithState(eng.state))

	return srv.Start(ctx)
}
