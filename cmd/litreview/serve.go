package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dshills/litreview/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the review workflow over HTTP",
		Long: `serve starts the HTTP API. Runs are started with POST /api/v1/runs and
continued with /generate and /revise; progress is streamed from
/api/v1/runs/{id}/events. Prometheus metrics are served on the metrics path
when enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				return serve(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().String("host", "", "address to listen on")
	cmd.Flags().Int("port", 0, "port to listen on")
	bind(opts.viper, cmd, map[string]string{
		"server.host": "host",
		"server.port": "port",
	})
	return cmd
}

// serve runs the API until ctx is cancelled, then shuts it down within the
// configured timeout.
func serve(ctx context.Context, a *app) error {
	cfg := server.Config{
		Address:         a.cfg.HTTPAddress(),
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}
	if a.cfg.Metrics.Enabled {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		cfg.MetricsPath = a.cfg.Metrics.Path
		cfg.Gatherer = a.registry
	}

	srv := server.New(cfg, a.runner, a.events, a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
