// Command nanoclaw-core runs the chat-facing half of nanoclaw: the Telegram
// transport, the message loop, the IPC watcher, and the scheduler. State-
// changing actions it produces are approved here and dispatched to a
// separately-running nanoclaw-runner over the signed HTTP envelope.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nanoclaw/ops/internal/approval"
	"github.com/nanoclaw/ops/internal/audit"
	"github.com/nanoclaw/ops/internal/channel"
	"github.com/nanoclaw/ops/internal/config"
	"github.com/nanoclaw/ops/internal/corestate"
	"github.com/nanoclaw/ops/internal/dispatch"
	"github.com/nanoclaw/ops/internal/ipcwatcher"
	"github.com/nanoclaw/ops/internal/memory"
	"github.com/nanoclaw/ops/internal/msgloop"
	otelPkg "github.com/nanoclaw/ops/internal/otel"
	"github.com/nanoclaw/ops/internal/planner"
	"github.com/nanoclaw/ops/internal/proposal"
	"github.com/nanoclaw/ops/internal/schedule"
	"github.com/nanoclaw/ops/internal/scheduler"
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

	logger, closer, err := telemetry.NewLogger(cfg.DataDir, "core", cfg.LogLevel, false)
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

	proposals, err := proposal.Open(cfg.DataDir)
	if err != nil {
		fatalStartup(logger, "E_PROPOSAL_STORE_OPEN", err)
	}
	defer proposals.Close()
	logger.Info("startup phase", "phase", "proposal_store_opened")

	state, err := corestate.Open(cfg.DataDir)
	if err != nil {
		fatalStartup(logger, "E_CORESTATE_OPEN", err)
	}

	tasks, err := schedule.Open(cfg.DataDir)
	if err != nil {
		fatalStartup(logger, "E_SCHEDULE_STORE_OPEN", err)
	}
	defer tasks.Close()

	mem, err := memory.NewWorkspace(cfg.Runner.NotesDir())
	if err != nil {
		fatalStartup(logger, "E_MEMORY_OPEN", err)
	}

	plannerClient := planner.New(cfg.Planner)

	ch := channel.NewTelegram(cfg.Telegram.Token, cfg.Telegram.AllowedIDs, logger)

	dispatcher := dispatch.New(dispatch.Config{
		WebhookURL:                   cfg.Dispatch.WebhookURL,
		Secret:                       cfg.Dispatch.Secret,
		Timeout:                      time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second,
		Source:                       "core",
		EnableLocalApprovedExecution: cfg.Dispatch.EnableLocalApprovedExecution,
	}, logger)

	approvals := approval.New(proposals, dispatcher, ch, plannerClient, auditor, logger)

	loop := msgloop.New(cfg, ch, state, proposals, plannerClient, mem, approvals, logger)
	watcher := ipcwatcher.New(filepath.Join(cfg.DataDir, "ipc"), ch, state, tasks, cfg.SchedulerLocation(), time.Duration(cfg.IPCWatcherMS)*time.Millisecond, logger)
	sched := scheduler.New(tasks, proposals, plannerClient, mem, cfg.SchedulerLocation(), time.Duration(cfg.SchedulerTickMS)*time.Millisecond, logger)

	errCh := make(chan error, 4)
	go func() { errCh <- ch.Start(ctx) }()
	go func() { errCh <- loop.Run(ctx) }()
	go func() { errCh <- watcher.Run(ctx) }()
	go func() { errCh <- sched.Run(ctx) }()

	logger.Info("nanoclaw-core started",
		"message_loop_ms", cfg.MessageLoopMS,
		"ipc_watcher_ms", cfg.IPCWatcherMS,
		"scheduler_tick_ms", cfg.SchedulerTickMS,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("component loop exited", "error", err)
		}
		stop()
	}
}
