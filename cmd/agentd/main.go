// Command agentd serves the tool-using agent over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hupe1980/agentd"
	"github.com/hupe1980/agentd/config"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	configPath := flag.String("config", os.Getenv("AGENTD_CONFIG"), "path to YAML config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}

	return 0
}

func run(ctx context.Context, configPath string) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, false).
		WithComponent("agentd")

	logger.Info("agentd.starting", "version", version, "addr", cfg.Server.Addr)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	agent, err := agentd.FromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := agent.Close(); err != nil {
			logger.Error("agentd.close.failed", "error", err.Error())
		}
	}()

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     agent.Handler(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// Streams stay open for the whole run; 0 disables the write deadline.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("agentd.shutting_down", "active_runs", agent.Runner().ActiveRuns())

	// In-flight streams finish (and persist) before the store is closed.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("agentd.http.shutdown_failed", "error", err.Error())
	}

	logger.Info("agentd.stopped")

	return nil
}
