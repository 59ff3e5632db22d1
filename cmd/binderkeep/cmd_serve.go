package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ramonehamilton/binderkeep/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the binder, import and trade API under /api/v1 and streams
import progress on /ws.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Error closing database", zap.Error(err))
		}
	}()

	if err := a.withImporter(ctx); err != nil {
		return err
	}

	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}

	server := api.NewServer(&api.Config{
		Port:           port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, api.Services{
		Binders: a.binders,
		Cards:   a.pipeline,
		Imports: a.pipeline,
		Trades:  a.trades,
		Metrics: a.metrics,
	}, logger.Named("api"))

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "API server running at http://localhost:%d\n", port)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
