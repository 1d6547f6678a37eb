package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/viralsim/internal/api"
	"github.com/nvandessel/viralsim/internal/instrument"
	"github.com/nvandessel/viralsim/internal/logging"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve simulations over HTTP until interrupted.

Endpoints:
  POST  /v1/simulations     run a simulation
  POST  /v1/projections     project growth
  GET   /v1/social-proof    social proof at ?network_size=N
  GET   /v1/config          live network config
  PATCH /v1/config          update the live network config
  GET   /healthz            liveness
  GET   /metrics            Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			recorder := instrument.NewRecorder()
			svc, closeTrace, err := newService(cmd, cfg, recorder)
			if err != nil {
				return err
			}
			defer closeTrace()

			logger := logging.NewJSONLogger(cfg.Logging.Level, cmd.ErrOrStderr())
			srv := api.NewServer(svc, cfg.Server, version, logger)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			logger.Info("api listening", "addr", cfg.Server.Addr, "version", version)
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8484)")
	return cmd
}
