package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/arbiter/internal/database"
	"github.com/rafaeljc/arbiter/internal/logger"
	"github.com/rafaeljc/arbiter/internal/observability"
	"github.com/rafaeljc/arbiter/internal/outcomes"
)

const poolMonitorInterval = 15 * time.Second

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Apply queued advance-created events until interrupted",
		Long: `Pop advance-created events from the outcome queue and apply them to the
engine. The observability server exposes liveness, readiness, metrics and
the loaded graph under /debug/graph while the worker runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logger.WithContext(ctx, a.logger)

			a.cfg.LogConfig(a.logger)

			engine, g, err := a.engine(ctx)
			if err != nil {
				return err
			}
			client, err := a.redisClient(ctx)
			if err != nil {
				return err
			}

			if a.pool != nil {
				go database.RunPoolMonitor(ctx, a.pool, poolMonitorInterval)
			}

			srv := observability.NewServer(a.logger, &a.cfg.Observability,
				observability.WithGraph(g.Root),
				observability.WithCheckers(a.checkers...),
			)
			srv.Start()

			queue := outcomes.NewQueue(client, a.cfg.Worker.QueueKey)
			runErr := outcomes.NewWorker(a.logger, a.cfg.Worker, queue, engine).Run(ctx)

			a.logger.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("observability shutdown failed", slog.String("error", err.Error()))
			}
			return runErr
		},
	}
}
