// The webhook-server process receives Resend delivery-event callbacks and
// exposes health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"lokumail/internal/config"
	"lokumail/internal/db"
	"lokumail/internal/logging"
	"lokumail/internal/telemetry"
	"lokumail/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "webhook-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Resend.WebhookSecret.Unmask() == "" {
		return errors.New("RESEND_WEBHOOK_SECRET is required for the webhook server")
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

	verifier, err := webhook.NewSvixVerifier(cfg.Resend.WebhookSecret)
	if err != nil {
		return fmt.Errorf("create webhook verifier: %w", err)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	reconciler := webhook.NewReconciler(webhook.ReconcilerConfig{
		Jobs:         db.NewJobRepository(pool),
		Events:       db.NewEventRepository(pool),
		Suppressions: db.NewSuppressionRepository(pool),
		Metrics:      metrics,
		Logger:       logger,
	})
	handler := webhook.NewHandler(webhook.HandlerConfig{
		Verifier:   verifier,
		Reconciler: reconciler,
		Logger:     logger,
	})

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Post("/api/webhooks/resend", handler.HandleResendWebhook)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("webhook server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down webhook server")
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
