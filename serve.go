package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"constellationFinder/initialization"
	"constellationFinder/logging"
	"constellationFinder/server"
	"constellationFinder/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res := initialization.NewSystemInitializer(cfg).InitializeSystem(ctx)
		if res.Error != nil {
			return res.Error
		}
		defer func() {
			if err := res.Cleanup(); err != nil {
				logging.Warn().Err(err).Msg("cleanup failed")
			}
		}()
		if !cfg.HasValidAPI() {
			logging.Warn().Msg("no LLM credentials configured, narration and chat will use canned replies")
		}

		srv, err := server.New(res.ServerDeps())
		if err != nil {
			return err
		}

		tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		})
		tree.AddAPIService(supervisor.NewHTTPServerService(srv.NewHTTPServer(), cfg.Server.ShutdownTimeout))
		tree.AddMaintenanceService(supervisor.NewStagingJanitor(
			cfg.StagingDir(), cfg.Storage.StagingMaxAge, cfg.Storage.JanitorInterval,
		))

		logging.Info().Str("addr", cfg.Addr()).Str("store", res.Store.Backend()).Msg("starting constellation finder")
		if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
			logging.Warn().Int("count", len(report)).Msg("services did not stop in time")
		}
		logging.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().String("host", "", "listen host (overrides server.host)")
	rootCmd.AddCommand(serveCmd)
}
