// Package worker implements the delivery loop: lease one runnable job at a
// time, re-check the guards that may have changed since enqueue, render, rate
// limit, send, and write back the terminal or retry state. The process-wide
// advisory lock taken by the entry point guarantees at most one live worker,
// so the loop never coordinates with peers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"lokumail/internal/config"
	"lokumail/internal/external"
	"lokumail/internal/telemetry"
	"lokumail/internal/templates"
	"lokumail/internal/types"
)

// errorPauseInterval is how long the loop pauses after an unexpected error
// before polling again, keeping a persistent failure from spinning hot.
const errorPauseInterval = 500 * time.Millisecond

// JobStore is the job persistence surface the worker needs.
type JobStore interface {
	LeaseNext(ctx context.Context, workerID string, lockFor time.Duration) (*types.EmailJob, error)
	GetByID(ctx context.Context, id string) (*types.EmailJob, error)
	MarkSent(ctx context.Context, id, subject, providerMessageID string) error
	MarkTerminal(ctx context.Context, id string, status types.JobStatus, lastError string) error
	FailJob(ctx context.Context, id string, attempts int, lastError string) error
	RequeueJob(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error
}

// SuppressionStore is the suppression lookup surface the worker needs.
type SuppressionStore interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// Provider sends one email and classifies failures into retryable and
// permanent.
type Provider interface {
	Send(ctx context.Context, input external.SendInput) (*external.SendResult, error)
}

// Renderer produces subject and HTML for a job type and payload snapshot.
type Renderer func(jobType types.JobType, payload *types.OrderEmailPayload) (subject, html string, err error)

// WorkerConfig holds the dependencies for constructing a Worker.
type WorkerConfig struct {
	Jobs         JobStore
	Suppressions SuppressionStore
	Provider     Provider
	Render       Renderer // defaults to templates.Render
	Email        config.EmailConfig
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
	WorkerID     string              // defaults to hostname:pid
	Now          func() time.Time    // defaults to time.Now().UTC
	Sleep        func(time.Duration) // defaults to time.Sleep
	Rand         func() float64      // defaults to rand.Float64
}

// Worker drains the email job queue.
type Worker struct {
	jobs         JobStore
	suppressions SuppressionStore
	provider     Provider
	render       Renderer
	email        config.EmailConfig
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	workerID     string
	now          func() time.Time
	sleep        func(time.Duration)
	rng          func() float64
	limiter      *rateLimiter
}

// NewWorker creates a delivery worker. Logger defaults to slog.Default().
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	render := cfg.Render
	if render == nil {
		render = templates.Render
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		hostname, _ := os.Hostname()
		workerID = fmt.Sprintf("%s:%d", hostname, os.Getpid())
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.Float64
	}

	return &Worker{
		jobs:         cfg.Jobs,
		suppressions: cfg.Suppressions,
		provider:     cfg.Provider,
		render:       render,
		email:        cfg.Email,
		metrics:      cfg.Metrics,
		logger:       logger.With("worker_id", workerID),
		workerID:     workerID,
		now:          now,
		sleep:        sleep,
		rng:          rng,
		limiter:      newRateLimiter(cfg.Email.SendRatePerSecond, now, sleep),
	}
}

// Run polls the queue until the context is cancelled. Errors are logged and
// paused over, never fatal: a sick dependency must not kill the singleton
// worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("delivery worker started",
		"rate_per_second", w.email.SendRatePerSecond,
		"poll_interval", w.email.PollInterval,
	)

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("delivery worker stopping")
			return nil
		}

		job, err := w.jobs.LeaseNext(ctx, w.workerID, w.email.LockDuration)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("failed to lease job", "error", err)
			w.sleep(errorPauseInterval)
			continue
		}
		if job == nil {
			w.sleep(w.email.PollInterval)
			continue
		}

		if err := w.processJob(ctx, job); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("failed to process job", "job_id", job.ID, "error", err)
			w.sleep(errorPauseInterval)
		}
	}
}

// processJob drives one leased job to its next state. The guards re-run here
// because suppression entries and kill switches may have changed between
// enqueue and delivery.
func (w *Worker) processJob(ctx context.Context, job *types.EmailJob) error {
	if job.Status != types.JobStatusSending {
		return nil
	}

	if !w.email.QueueEnabled {
		w.metrics.ObserveSend("cancelled", 0)
		return w.jobs.MarkTerminal(ctx, job.ID, types.JobStatusCancelled, "Email queue disabled")
	}

	if !w.email.Enabled {
		w.metrics.ObserveSend("suppressed", 0)
		return w.jobs.MarkTerminal(ctx, job.ID, types.JobStatusSuppressed,
			"Email delivery disabled by EMAIL_ENABLED=false")
	}

	toEmail := types.NormalizeEmail(job.ToEmail)
	if toEmail != "" {
		suppressed, err := w.suppressions.IsSuppressed(ctx, toEmail)
		if err != nil {
			return err
		}
		if suppressed {
			w.metrics.ObserveSend("suppressed", 0)
			return w.jobs.MarkTerminal(ctx, job.ID, types.JobStatusSuppressed,
				"Suppressed by email_suppressions")
		}
	}

	if toEmail == "" {
		w.metrics.ObserveSend("failed", 0)
		return w.jobs.MarkTerminal(ctx, job.ID, types.JobStatusFailed, "Missing to_email")
	}

	subject, html, err := w.render(job.Type, job.Payload)
	if err != nil {
		w.metrics.ObserveSend("failed", 0)
		return w.jobs.MarkTerminal(ctx, job.ID, types.JobStatusFailed, err.Error())
	}

	w.limiter.Wait()

	// Re-read before the irreversible side effect: the lease may have
	// expired during the rate-limit sleep and been claimed elsewhere.
	fresh, err := w.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if fresh == nil || fresh.Status != types.JobStatusSending || fresh.LockedBy != w.workerID {
		w.logger.Warn("abandoning job, ownership lost", "job_id", job.ID)
		return nil
	}

	from := job.FromEmail
	if w.email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", w.email.FromName, job.FromEmail)
	}

	start := w.now()
	result, sendErr := w.provider.Send(ctx, external.SendInput{
		From:    from,
		To:      []string{toEmail},
		ReplyTo: job.ReplyToEmail,
		Subject: subject,
		HTML:    html,
		Tags: []external.Tag{
			{Name: "job_id", Value: job.ID},
			{Name: "type", Value: string(job.Type)},
		},
		IdempotencyKey: job.ID,
	})
	duration := w.now().Sub(start)

	if sendErr != nil {
		return w.handleSendFailure(ctx, job, sendErr, duration)
	}

	if result.MessageID == "" {
		// An accepted send without a message id can never be reconciled
		// against webhooks; treat it as a delivery failure.
		w.metrics.ObserveSend("failed", duration)
		return w.jobs.MarkTerminal(ctx, job.ID, types.JobStatusFailed,
			"Provider did not return a message id")
	}

	w.metrics.ObserveSend("sent", duration)
	w.logger.Info("email sent",
		"job_id", job.ID,
		"type", job.Type,
		"resend_message_id", result.MessageID,
	)
	return w.jobs.MarkSent(ctx, job.ID, subject, result.MessageID)
}

func (w *Worker) handleSendFailure(ctx context.Context, job *types.EmailJob, sendErr error, duration time.Duration) error {
	attempts := job.AttemptCount + 1

	var provErr *external.SendError
	if !errors.As(sendErr, &provErr) {
		provErr = &external.SendError{Message: sendErr.Error(), Retryable: true, Err: sendErr}
	}

	if !provErr.Retryable {
		w.metrics.ObserveSend("failed", duration)
		w.logger.Warn("email permanently failed",
			"job_id", job.ID,
			"status_code", provErr.StatusCode,
			"error", provErr.Message,
		)
		return w.jobs.FailJob(ctx, job.ID, attempts, provErr.Message)
	}

	if attempts >= job.MaxAttempts {
		w.metrics.ObserveSend("failed", duration)
		w.logger.Warn("email failed, attempts exhausted",
			"job_id", job.ID,
			"attempts", attempts,
			"error", provErr.Message,
		)
		return w.jobs.FailJob(ctx, job.ID, attempts, provErr.Message)
	}

	backoff := computeBackoff(attempts, provErr.StatusCode, w.rng)
	nextAttemptAt := w.now().Add(backoff)
	w.metrics.ObserveSend("retried", duration)
	w.logger.Info("email send retryable failure",
		"job_id", job.ID,
		"attempts", attempts,
		"backoff", backoff,
		"error", provErr.Message,
	)
	return w.jobs.RequeueJob(ctx, job.ID, attempts, provErr.Message, nextAttemptAt)
}
