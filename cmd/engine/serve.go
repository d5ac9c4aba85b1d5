package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/exposure-engine/internal/server"
)

// version is stamped at build time via -ldflags; left as a plain
// default since this module ships no release automation.
var version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the IPC HTTP host",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		c, err := buildContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to build container: %w", err)
		}
		defer c.Close()

		if err := c.registerJobs(); err != nil {
			return fmt.Errorf("failed to register background jobs: %w", err)
		}
		c.scheduler.Start()

		srv := server.New(server.Config{
			Port:             cfg.HTTPPort,
			DevMode:          cfg.LogLevel == "debug",
			Version:          version,
			HealthReportPath: cfg.HealthReportPath(),
		}, server.Deps{
			Store:        c.store,
			Bus:          c.bus,
			Orchestrator: c.orchestrator,
			Ingestor:     c.ingestor,
			Broker:       nil, // broker auth/session management is out of scope; sync_portfolio takes inline positions
			Hive:         c.hiveClient,
			ManualStore:  c.manualStore,
		}, c.log)

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil {
				errCh <- err
			}
		}()

		c.log.Info().Int("port", cfg.HTTPPort).Msg("engine started")

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case <-quit:
			c.log.Info().Msg("shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			c.log.Error().Err(err).Msg("server forced to shutdown")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
