package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lokumail/internal/types"
)

// jobColumns is the canonical column list for email_jobs reads. Every scan in
// this file follows this order.
const jobColumns = `id, batch_id, type, status, dedupe_key, order_id, to_email, from_email,
	reply_to_email, subject, payload, resend_message_id, attempt_count, max_attempts,
	next_attempt_at, locked_until, locked_by, last_error, created_at, updated_at, sent_at`

// JobRepository provides PostgreSQL-backed access to the email_jobs table.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a job repository backed by the given database handle.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row. A duplicate dedupe key is reported as a
// conflict AppError so callers can map it to an enqueue outcome rather than
// treat it as an infrastructure failure.
func (r *JobRepository) Create(ctx context.Context, job *types.EmailJob) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO email_jobs (
			id, batch_id, type, status, dedupe_key, order_id, to_email, from_email,
			reply_to_email, subject, payload, attempt_count, max_attempts,
			next_attempt_at, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())`,
		job.ID,
		job.BatchID,
		string(job.Type),
		string(job.Status),
		job.DedupeKey,
		job.OrderID,
		nilIfEmpty(job.ToEmail),
		nilIfEmpty(job.FromEmail),
		nilIfEmpty(job.ReplyToEmail),
		nilIfEmpty(job.Subject),
		job.Payload,
		job.AttemptCount,
		job.MaxAttempts,
		job.NextAttemptAt,
		nilIfEmpty(job.LastError),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return types.NewAppError(types.ErrCodeConflictDedupeKey,
				fmt.Sprintf("job with dedupe key %s already exists", job.DedupeKey), err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create email job", err)
	}
	return nil
}

// GetByID returns the job with the given id, or (nil, nil) if none exists.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*types.EmailJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM email_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetByDedupeKey returns the job holding the given dedupe key, or (nil, nil)
// if the key is unused.
func (r *JobRepository) GetByDedupeKey(ctx context.Context, dedupeKey string) (*types.EmailJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM email_jobs WHERE dedupe_key = $1`, dedupeKey)
	return scanJob(row)
}

// GetByProviderMessageID returns the job whose send produced the given
// provider message id, or (nil, nil) when no job matches. Used by webhook
// reconciliation, where a miss is expected and not an error.
func (r *JobRepository) GetByProviderMessageID(ctx context.Context, messageID string) (*types.EmailJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM email_jobs WHERE resend_message_id = $1
		 ORDER BY created_at DESC LIMIT 1`, messageID)
	return scanJob(row)
}

// AttachToBatch points an existing live job at a batch without touching any
// other state. Used when a bulk operation finds the job already queued.
func (r *JobRepository) AttachToBatch(ctx context.Context, jobID, batchID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_jobs SET batch_id = $2, updated_at = NOW() WHERE id = $1`,
		jobID, batchID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to attach job to batch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob,
			fmt.Sprintf("job %s not found", jobID), nil)
	}
	return nil
}

// Reopen reuses a cancelled job row in place, preserving its id and dedupe
// key while resetting all volatile columns. The status guard makes the reuse
// safe against races: only a cancelled row is rewritten.
func (r *JobRepository) Reopen(ctx context.Context, id string, params types.ReopenParams) (*types.EmailJob, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE email_jobs SET
			batch_id = $2,
			status = $3,
			to_email = $4,
			from_email = $5,
			reply_to_email = $6,
			subject = NULL,
			payload = $7,
			resend_message_id = NULL,
			attempt_count = 0,
			max_attempts = $8,
			next_attempt_at = NOW(),
			locked_until = NULL,
			locked_by = NULL,
			last_error = $9,
			updated_at = NOW(),
			sent_at = NULL
		WHERE id = $1 AND status = 'cancelled'
		RETURNING `+jobColumns,
		id,
		params.BatchID,
		string(params.Status),
		nilIfEmpty(params.ToEmail),
		nilIfEmpty(params.FromEmail),
		nilIfEmpty(params.ReplyToEmail),
		params.Payload,
		params.MaxAttempts,
		nilIfEmpty(params.LastError),
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, types.NewAppError(types.ErrCodeConflictJobState,
			fmt.Sprintf("job %s is not cancelled and cannot be reopened", id), nil)
	}
	return job, nil
}

// LeaseNext atomically claims the single most overdue runnable job for this
// worker: a queued job whose next_attempt_at has passed, or a sending job
// whose lease expired (crashed worker recovery). FOR UPDATE SKIP LOCKED keeps
// concurrent leases from ever claiming the same row. Returns (nil, nil) when
// nothing is runnable.
func (r *JobRepository) LeaseNext(ctx context.Context, workerID string, lockFor time.Duration) (*types.EmailJob, error) {
	lockedUntil := time.Now().UTC().Add(lockFor)
	row := r.db.QueryRow(ctx, `
		UPDATE email_jobs SET
			status = 'sending',
			locked_by = $1,
			locked_until = $2,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM email_jobs
			WHERE status IN ('queued', 'sending')
			  AND next_attempt_at <= NOW()
			  AND (status = 'queued' OR locked_until IS NULL OR locked_until < NOW())
			ORDER BY next_attempt_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID, lockedUntil)
	return scanJob(row)
}

// MarkSent records a successful delivery: terminal sent status, the rendered
// subject, the provider message id, and the send timestamp. The lease is
// cleared.
func (r *JobRepository) MarkSent(ctx context.Context, id, subject, providerMessageID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_jobs SET
			status = 'sent',
			subject = $2,
			resend_message_id = $3,
			last_error = NULL,
			locked_until = NULL,
			locked_by = NULL,
			sent_at = NOW(),
			updated_at = NOW()
		WHERE id = $1`,
		id, nilIfEmpty(subject), nilIfEmpty(providerMessageID))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob,
			fmt.Sprintf("job %s not found", id), nil)
	}
	return nil
}

// MarkTerminal moves a job to a terminal status without touching the attempt
// counter. Used for pre-send guard outcomes (cancelled, suppressed) and
// non-retryable conditions detected before or outside a provider attempt.
func (r *JobRepository) MarkTerminal(ctx context.Context, id string, status types.JobStatus, lastError string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_jobs SET
			status = $2,
			last_error = $3,
			locked_until = NULL,
			locked_by = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		id, string(status), nilIfEmpty(lastError))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job terminal", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob,
			fmt.Sprintf("job %s not found", id), nil)
	}
	return nil
}

// FailJob records a permanently failed send attempt: the attempt counter and
// error are persisted and the lease cleared.
func (r *JobRepository) FailJob(ctx context.Context, id string, attempts int, lastError string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_jobs SET
			status = 'failed',
			attempt_count = $2,
			last_error = $3,
			locked_until = NULL,
			locked_by = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		id, attempts, nilIfEmpty(lastError))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob,
			fmt.Sprintf("job %s not found", id), nil)
	}
	return nil
}

// RequeueJob returns a job to the queue after a retryable failure, recording
// the attempt, the error, and when the next attempt becomes due.
func (r *JobRepository) RequeueJob(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_jobs SET
			status = 'queued',
			attempt_count = $2,
			last_error = $3,
			next_attempt_at = $4,
			locked_until = NULL,
			locked_by = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		id, attempts, nilIfEmpty(lastError), nextAttemptAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to requeue job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob,
			fmt.Sprintf("job %s not found", id), nil)
	}
	return nil
}

// Cancel moves a live (queued or sending) job to cancelled. A job already in
// a terminal state is a state conflict, not a silent success.
func (r *JobRepository) Cancel(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_jobs SET
			status = 'cancelled',
			locked_until = NULL,
			locked_by = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'sending')`,
		id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel job", err)
	}
	if tag.RowsAffected() == 0 {
		job, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if job == nil {
			return types.NewAppError(types.ErrCodeNotFoundJob,
				fmt.Sprintf("job %s not found", id), nil)
		}
		return types.NewAppError(types.ErrCodeConflictJobState,
			fmt.Sprintf("job %s is %s and cannot be cancelled", id, job.Status), nil)
	}
	return nil
}

// RetryFailed resets a failed job for a fresh delivery cycle: attempt counter
// back to zero and immediately runnable. The last error is kept for audit
// until the next attempt overwrites it.
func (r *JobRepository) RetryFailed(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE email_jobs SET
			status = 'queued',
			attempt_count = 0,
			next_attempt_at = NOW(),
			locked_until = NULL,
			locked_by = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`,
		id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to retry job", err)
	}
	if tag.RowsAffected() == 0 {
		job, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if job == nil {
			return types.NewAppError(types.ErrCodeNotFoundJob,
				fmt.Sprintf("job %s not found", id), nil)
		}
		return types.NewAppError(types.ErrCodeConflictJobState,
			fmt.Sprintf("job %s is %s, only failed jobs can be retried", id, job.Status), nil)
	}
	return nil
}

// scanJob reads one email_jobs row in jobColumns order. Nullable text columns
// are scanned through pointer temporaries and flattened to empty strings.
// Returns (nil, nil) when the row does not exist.
func scanJob(row pgx.Row) (*types.EmailJob, error) {
	var (
		job          types.EmailJob
		jobType      string
		status       string
		toEmail      *string
		fromEmail    *string
		replyToEmail *string
		subject      *string
		payload      types.OrderEmailPayload
		messageID    *string
		lockedBy     *string
		lastError    *string
	)

	err := row.Scan(
		&job.ID,
		&job.BatchID,
		&jobType,
		&status,
		&job.DedupeKey,
		&job.OrderID,
		&toEmail,
		&fromEmail,
		&replyToEmail,
		&subject,
		&payload,
		&messageID,
		&job.AttemptCount,
		&job.MaxAttempts,
		&job.NextAttemptAt,
		&job.LockedUntil,
		&lockedBy,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan email job", err)
	}

	job.Type = types.JobType(jobType)
	job.Status = types.JobStatus(status)
	job.ToEmail = valueOrEmpty(toEmail)
	job.FromEmail = valueOrEmpty(fromEmail)
	job.ReplyToEmail = valueOrEmpty(replyToEmail)
	job.Subject = valueOrEmpty(subject)
	job.Payload = &payload
	job.ProviderMessageID = valueOrEmpty(messageID)
	job.LockedBy = valueOrEmpty(lockedBy)
	job.LastError = valueOrEmpty(lastError)
	return &job, nil
}

// nilIfEmpty converts an empty string to NULL for insert/update parameters.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// valueOrEmpty flattens a nullable text column to its zero value.
func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
