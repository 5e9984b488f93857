// The email-worker process drains the email job queue. Exactly one live
// worker is allowed: the process takes a Postgres advisory lock at startup
// and exits immediately if another worker already holds it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lokumail/internal/config"
	"lokumail/internal/db"
	"lokumail/internal/external"
	"lokumail/internal/logging"
	"lokumail/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "email-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Environment, cfg.Service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	lock, acquired, err := db.AcquireAdvisoryLock(ctx, pool, db.WorkerAdvisoryLockKey)
	if err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		logger.Error("another worker holds the advisory lock, exiting")
		os.Exit(1)
	}
	defer func() {
		// The run context is cancelled by now; release on a fresh one.
		lock.Release(context.Background())
	}()

	w := worker.NewWorker(worker.WorkerConfig{
		Jobs:         db.NewJobRepository(pool),
		Suppressions: db.NewSuppressionRepository(pool),
		Provider:     external.NewResendClient(cfg.Resend),
		Email:        cfg.Email,
		Logger:       logger,
	})

	return w.Run(ctx)
}
