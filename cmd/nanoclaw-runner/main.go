// Command nanoclaw-runner executes approved action batches: it receives a
// signed dispatch envelope from nanoclaw-core, runs each action (SSH,
// web fetch, addon, background coding task, ...), and exposes the run
// registry over HTTP for status polling and cancellation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nanoclaw/ops/internal/audit"
	"github.com/nanoclaw/ops/internal/bus"
	"github.com/nanoclaw/ops/internal/config"
	otelPkg "github.com/nanoclaw/ops/internal/otel"
	"github.com/nanoclaw/ops/internal/runner"
	"github.com/nanoclaw/ops/internal/runregistry"
	"github.com/nanoclaw/ops/internal/telemetry"
)

func fatalStartup(logger *slog.Logger, code string, err error) {
	if logger != nil {
		logger.Error("startup failed", "code", code, "error", err)
	} else {
		fmt.Fprintf(os.Stderr, "startup failed [%s]: %v\n", code, err)
	}
	os.Exit(1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	auditor, err := audit.Open(cfg.DataDir)
	if err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer auditor.Close()

	logger, closer, err := telemetry.NewLogger(cfg.DataDir, "runner", cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded")

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Otel.Enabled,
		Exporter:    cfg.Otel.Exporter,
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		SampleRate:  cfg.Otel.SampleRate,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(ctx)

	eventBus := bus.New()

	runs, err := runregistry.Open(cfg.DataDir, eventBus)
	if err != nil {
		fatalStartup(logger, "E_RUN_REGISTRY_OPEN", err)
	}
	defer runs.Close()
	logger.Info("startup phase", "phase", "run_registry_opened")

	hosts := make(map[string]string, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		hosts[h.Name] = h.Address
	}

	exec := runner.NewExecutor(cfg.Runner, hosts, runs, auditor, logger)
	srv := runner.NewServer(exec, runs, cfg.Dispatch.Secret, cfg.Runner.SharedSecret, logger)

	logger.Info("nanoclaw-runner started", "bind_addr", cfg.Runner.BindAddr, "max_parallel", cfg.Runner.MaxParallel)

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx, cfg.Runner.BindAddr, srv.Handler(), logger) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("runner http server exited", "error", err)
		}
	}
}
