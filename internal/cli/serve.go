package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ticketchain/internal/analysis"
	apphttp "ticketchain/internal/http"
	"ticketchain/internal/http/router"
	"ticketchain/platform/validator"
)

const shutdownGrace = 10 * time.Second

func newServeCommand(g *globals) *cobra.Command {
	var (
		mock    bool
		fixture string
		addr    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := runFlags{mock: mock, fixture: fixture}
			if _, err := f.options(); err != nil {
				return err
			}
			fixtures, err := f.fixtures()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			pipeline, err := a.buildPipeline(ctx, pipelineOptions{mock: mock, fixtures: fixtures})
			if err != nil {
				return err
			}
			deps := analysis.ModuleDeps{
				Reader:    a.store,
				Bucket:    a.cfg.GetMinioBucketArtifacts(),
				MaxBatch:  a.cfg.GetBatchMaxInFlight(),
				Validator: validator.New(),
				Logger:    a.log,
			}
			if a.archive != nil {
				deps.Artifacts = a.archive
			}

			engine := router.New(&apphttp.App{
				Config:   a.cfg,
				Logger:   a.log,
				Health:   storeHealth{store: a.store},
				EventBus: a.bus,
				Modules:  []apphttp.Module{analysis.NewModule(pipeline, deps)},
			})
			if addr == "" {
				addr = a.cfg.GetHTTPAddr()
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           engine,
				ReadHeaderTimeout: 10 * time.Second,
			}

			srvErr := make(chan error, 1)
			go func() {
				a.log.Info("server listening", "addr", addr, "mock", mock)
				srvErr <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				a.log.Info("shutdown signal received, gracefully shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-srvErr:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().BoolVar(&mock, "mock", false, "Use canned model answers and fixture tickets instead of live services")
	cmd.Flags().StringVar(&fixture, "fixture", "", "Serve tickets from a YAML chain fixture (mock runs)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default HTTP_ADDR)")
	return cmd
}
