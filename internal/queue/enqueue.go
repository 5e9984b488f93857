// Package queue implements the enqueue service: the decision logic that
// turns a business event ("order X needs a confirmation/reminder") into at
// most one email job row. Expected business conditions are reported as
// outcomes, never as errors.
package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"lokumail/internal/config"
	"lokumail/internal/telemetry"
	"lokumail/internal/types"
)

// JobStore is the job persistence surface the enqueue service needs.
type JobStore interface {
	GetByDedupeKey(ctx context.Context, dedupeKey string) (*types.EmailJob, error)
	Create(ctx context.Context, job *types.EmailJob) error
	AttachToBatch(ctx context.Context, jobID, batchID string) error
	Reopen(ctx context.Context, id string, params types.ReopenParams) (*types.EmailJob, error)
}

// BatchStore is the batch persistence surface the enqueue service needs.
type BatchStore interface {
	Create(ctx context.Context, batch *types.EmailBatch) error
}

// OrderStore is the read surface onto the ordering subsystem, plus the single
// reminded-flag write the reminder flow performs.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*types.Order, error)
	SetReminded(ctx context.Context, id string, reminded bool) error
	GetEventByID(ctx context.Context, id int64) (*types.Event, error)
	GetActiveEvent(ctx context.Context) (*types.Event, error)
	GetLocationByNameOrID(ctx context.Context, nameOrID string) (*types.Location, error)
	ListConfirmedIDs(ctx context.Context) ([]string, error)
}

// SuppressionStore is the suppression lookup surface the enqueue service needs.
type SuppressionStore interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// Options modifies a single enqueue call. Force bypasses order-level guards
// (the reminded flag) but never the dedupe key constraint.
type Options struct {
	BatchID *string
	Force   bool
}

// Result is the outcome of one enqueue call. Job is nil for the skipped_*
// outcomes, which write no row.
type Result struct {
	Outcome types.EnqueueOutcome
	Message string
	Job     *types.EmailJob
}

// ServiceConfig holds the dependencies for constructing a Service.
type ServiceConfig struct {
	Jobs         JobStore
	Batches      BatchStore
	Orders       OrderStore
	Suppressions SuppressionStore
	Email        config.EmailConfig
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
}

// Service converts business events into email job rows.
type Service struct {
	jobs         JobStore
	batches      BatchStore
	orders       OrderStore
	suppressions SuppressionStore
	email        config.EmailConfig
	metrics      *telemetry.Metrics
	logger       *slog.Logger
}

// NewService creates an enqueue service. Logger defaults to slog.Default().
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:         cfg.Jobs,
		batches:      cfg.Batches,
		orders:       cfg.Orders,
		suppressions: cfg.Suppressions,
		email:        cfg.Email,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Enqueue requests delivery of one email for one order. It is idempotent per
// (type, orderID): repeated calls never create a second live row for the
// same dedupe key. The returned error reports infrastructure failures only;
// every business condition maps to a Result outcome.
func (s *Service) Enqueue(ctx context.Context, orderID string, jobType types.JobType, opts Options) (Result, error) {
	var (
		result Result
		err    error
	)
	switch jobType {
	case types.JobTypeOrderConfirmation:
		result, err = s.enqueueConfirmation(ctx, orderID, opts)
	case types.JobTypePickupReminder:
		result, err = s.enqueueReminder(ctx, orderID, opts)
	default:
		return Result{}, types.NewAppError(types.ErrCodeValidationInvalidPayload,
			"unknown email job type "+string(jobType), nil)
	}
	if err != nil {
		return Result{}, err
	}

	s.metrics.ObserveEnqueue(string(jobType), string(result.Outcome))
	s.logger.Info("enqueue decision",
		"order_id", orderID,
		"type", jobType,
		"outcome", result.Outcome,
	)
	return result, nil
}

func (s *Service) enqueueConfirmation(ctx context.Context, orderID string, opts Options) (Result, error) {
	if !s.email.QueueEnabled {
		return Result{Outcome: types.OutcomeFailedToQueue, Message: "Email queue disabled"}, nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order == nil {
		return Result{Outcome: types.OutcomeSkippedMissingOrder, Message: "Order not found"}, nil
	}

	dedupeKey := types.DedupeKey(types.JobTypeOrderConfirmation, orderID)
	existing, err := s.jobs.GetByDedupeKey(ctx, dedupeKey)
	if err != nil {
		return Result{}, err
	}

	// The dedupe key is unique, so even with force we cannot create a new
	// job row. Force bypasses order-level guards, not dedupe.
	if existing != nil && existing.Status != types.JobStatusCancelled {
		return s.resolveExisting(ctx, existing, opts.BatchID)
	}

	if order.ExcludeEmail {
		job, err := s.writeSuppressedJob(ctx, types.JobTypeOrderConfirmation, order, existing, opts.BatchID, "")
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: types.OutcomeSuppressed, Message: "Email excluded", Job: job}, nil
	}

	toEmail := types.NormalizeEmail(order.Email)
	if toEmail == "" {
		return Result{Outcome: types.OutcomeSkippedMissingEmail, Message: "Missing email"}, nil
	}

	if !s.email.Enabled {
		job, err := s.writeSuppressedJob(ctx, types.JobTypeOrderConfirmation, order, existing, opts.BatchID,
			"Email delivery disabled by EMAIL_ENABLED=false")
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: types.OutcomeSuppressed, Message: "Email disabled", Job: job}, nil
	}

	suppressed, err := s.suppressions.IsSuppressed(ctx, toEmail)
	if err != nil {
		return Result{}, err
	}
	if suppressed {
		job, err := s.writeSuppressedJob(ctx, types.JobTypeOrderConfirmation, order, existing, opts.BatchID,
			"Suppressed by email_suppressions")
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: types.OutcomeSuppressed, Message: "Suppressed", Job: job}, nil
	}

	payload, err := s.buildPayload(ctx, order, false)
	if err != nil {
		return Result{}, err
	}
	job, createErr := s.writeQueuedJob(ctx, types.JobTypeOrderConfirmation, order, existing, opts.BatchID, payload)
	if createErr != nil {
		return Result{Outcome: types.OutcomeFailedToQueue, Message: createErr.Error()}, nil
	}
	return Result{Outcome: types.OutcomeQueued, Message: "Queued", Job: job}, nil
}

func (s *Service) enqueueReminder(ctx context.Context, orderID string, opts Options) (Result, error) {
	if !s.email.QueueEnabled {
		return Result{Outcome: types.OutcomeFailedToQueue, Message: "Email queue disabled"}, nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order == nil {
		return Result{Outcome: types.OutcomeSkippedMissingOrder, Message: "Order not found"}, nil
	}

	if order.Status != types.OrderStatusConfirmed {
		return Result{Outcome: types.OutcomeSkippedNotConfirmed, Message: "Only confirmed orders can be reminded"}, nil
	}

	if order.ExcludeEmail {
		return Result{Outcome: types.OutcomeSkippedExcluded, Message: "Excluded from email"}, nil
	}

	toEmail := types.NormalizeEmail(order.Email)
	if toEmail == "" {
		return Result{Outcome: types.OutcomeSkippedMissingEmail, Message: "Missing email"}, nil
	}

	dedupeKey := types.DedupeKey(types.JobTypePickupReminder, orderID)
	existing, err := s.jobs.GetByDedupeKey(ctx, dedupeKey)
	if err != nil {
		return Result{}, err
	}

	if existing != nil && existing.Status != types.JobStatusCancelled {
		result, err := s.resolveExisting(ctx, existing, opts.BatchID)
		if err != nil {
			return Result{}, err
		}
		// A live job means the order counts as reminded, except for a
		// failed job, which stays retryable at the order level too.
		if result.Outcome != types.OutcomeFailedToQueue {
			if err := s.orders.SetReminded(ctx, orderID, true); err != nil {
				return Result{}, err
			}
		}
		return result, nil
	}

	// A reminded flag whose only job is cancelled must not short-circuit a
	// fresh request.
	if existing != nil && existing.Status == types.JobStatusCancelled && order.Reminded {
		if err := s.orders.SetReminded(ctx, orderID, false); err != nil {
			return Result{}, err
		}
		order.Reminded = false
	}

	if order.Reminded && !opts.Force {
		return Result{Outcome: types.OutcomeSkippedAlreadyReminded, Message: "Already reminded"}, nil
	}

	if !s.email.Enabled {
		job, err := s.writeSuppressedJob(ctx, types.JobTypePickupReminder, order, existing, opts.BatchID,
			"Email delivery disabled by EMAIL_ENABLED=false")
		if err != nil {
			return Result{}, err
		}
		if err := s.orders.SetReminded(ctx, orderID, true); err != nil {
			return Result{}, err
		}
		return Result{Outcome: types.OutcomeSuppressed, Message: "Email disabled", Job: job}, nil
	}

	suppressed, err := s.suppressions.IsSuppressed(ctx, toEmail)
	if err != nil {
		return Result{}, err
	}
	if suppressed {
		job, err := s.writeSuppressedJob(ctx, types.JobTypePickupReminder, order, existing, opts.BatchID,
			"Suppressed by email_suppressions")
		if err != nil {
			return Result{}, err
		}
		if err := s.orders.SetReminded(ctx, orderID, true); err != nil {
			return Result{}, err
		}
		return Result{Outcome: types.OutcomeSuppressed, Message: "Suppressed", Job: job}, nil
	}

	payload, err := s.buildPayload(ctx, order, true)
	if err != nil {
		return Result{}, err
	}
	job, createErr := s.writeQueuedJob(ctx, types.JobTypePickupReminder, order, existing, opts.BatchID, payload)
	if createErr != nil {
		return Result{Outcome: types.OutcomeFailedToQueue, Message: createErr.Error()}, nil
	}
	if err := s.orders.SetReminded(ctx, orderID, true); err != nil {
		return Result{}, err
	}
	return Result{Outcome: types.OutcomeQueued, Message: "Queued", Job: job}, nil
}

// resolveExisting maps a live (non-cancelled) job for the dedupe key to the
// outcome describing its state.
func (s *Service) resolveExisting(ctx context.Context, existing *types.EmailJob, batchID *string) (Result, error) {
	switch existing.Status {
	case types.JobStatusQueued, types.JobStatusSending:
		if batchID != nil && (existing.BatchID == nil || *existing.BatchID != *batchID) {
			if err := s.jobs.AttachToBatch(ctx, existing.ID, *batchID); err != nil {
				return Result{}, err
			}
			existing.BatchID = batchID
		}
		return Result{Outcome: types.OutcomeAlreadyQueued, Message: "Already queued", Job: existing}, nil
	case types.JobStatusSent:
		return Result{Outcome: types.OutcomeAlreadySent, Message: "Already sent", Job: existing}, nil
	case types.JobStatusSuppressed:
		return Result{Outcome: types.OutcomeSuppressed, Message: "Suppressed", Job: existing}, nil
	case types.JobStatusFailed:
		return Result{Outcome: types.OutcomeFailedToQueue, Message: "Previous job failed. Retry the job.", Job: existing}, nil
	default:
		return Result{Outcome: types.OutcomeAlreadyQueued, Message: "Already queued", Job: existing}, nil
	}
}

// writeSuppressedJob records a suppressed job with an empty payload, reusing
// a cancelled row when one holds the dedupe key.
func (s *Service) writeSuppressedJob(
	ctx context.Context,
	jobType types.JobType,
	order *types.Order,
	existing *types.EmailJob,
	batchID *string,
	lastError string,
) (*types.EmailJob, error) {
	toEmail := types.NormalizeEmail(order.Email)

	if existing != nil && existing.Status == types.JobStatusCancelled {
		return s.jobs.Reopen(ctx, existing.ID, types.ReopenParams{
			BatchID:      batchID,
			Status:       types.JobStatusSuppressed,
			ToEmail:      toEmail,
			FromEmail:    s.email.FromAddress,
			ReplyToEmail: s.email.ReplyToAddress,
			Payload:      &types.OrderEmailPayload{},
			MaxAttempts:  s.email.MaxAttempts,
			LastError:    lastError,
		})
	}

	job := s.newJob(jobType, order.ID, toEmail, batchID, &types.OrderEmailPayload{})
	job.Status = types.JobStatusSuppressed
	job.LastError = lastError
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// writeQueuedJob records a queued job with a full payload snapshot, reusing a
// cancelled row when one holds the dedupe key.
func (s *Service) writeQueuedJob(
	ctx context.Context,
	jobType types.JobType,
	order *types.Order,
	existing *types.EmailJob,
	batchID *string,
	payload *types.OrderEmailPayload,
) (*types.EmailJob, error) {
	toEmail := types.NormalizeEmail(order.Email)

	if existing != nil && existing.Status == types.JobStatusCancelled {
		return s.jobs.Reopen(ctx, existing.ID, types.ReopenParams{
			BatchID:      batchID,
			Status:       types.JobStatusQueued,
			ToEmail:      toEmail,
			FromEmail:    s.email.FromAddress,
			ReplyToEmail: s.email.ReplyToAddress,
			Payload:      payload,
			MaxAttempts:  s.email.MaxAttempts,
		})
	}

	job := s.newJob(jobType, order.ID, toEmail, batchID, payload)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) newJob(jobType types.JobType, orderID, toEmail string, batchID *string, payload *types.OrderEmailPayload) *types.EmailJob {
	return &types.EmailJob{
		ID:            uuid.NewString(),
		BatchID:       batchID,
		Type:          jobType,
		Status:        types.JobStatusQueued,
		DedupeKey:     types.DedupeKey(jobType, orderID),
		OrderID:       orderID,
		ToEmail:       toEmail,
		FromEmail:     s.email.FromAddress,
		ReplyToEmail:  s.email.ReplyToAddress,
		Payload:       payload,
		MaxAttempts:   s.email.MaxAttempts,
		NextAttemptAt: utcNow(),
	}
}

// buildPayload snapshots everything rendering will need. Event date and
// e-transfer settings come from the order's event when it resolves, falling
// back to the currently active event; a missing location simply leaves the
// address blank.
func (s *Service) buildPayload(ctx context.Context, order *types.Order, reminder bool) (*types.OrderEmailPayload, error) {
	var (
		eventDate        string
		etransferEnabled bool
		etransferEmail   string
	)

	var event *types.Event
	if order.EventID != nil {
		var err error
		event, err = s.orders.GetEventByID(ctx, *order.EventID)
		if err != nil {
			return nil, err
		}
	}
	if event == nil || event.EventDate == "" {
		active, err := s.orders.GetActiveEvent(ctx)
		if err != nil {
			return nil, err
		}
		if active != nil {
			event = active
		}
	}
	if event != nil {
		eventDate = event.EventDate
		etransferEnabled = event.EtransferEnabled
		etransferEmail = event.EtransferEmail
	}

	address := ""
	if order.PickupLocation != "" {
		location, err := s.orders.GetLocationByNameOrID(ctx, order.PickupLocation)
		if err != nil {
			return nil, err
		}
		if location != nil {
			address = location.Address
		}
	}

	pricePerItem := 0.0
	if order.Quantity > 0 {
		pricePerItem = order.TotalPrice / float64(order.Quantity)
	}

	return &types.OrderEmailPayload{
		Name:             order.Name,
		ItemID:           order.ItemID,
		ItemName:         order.ItemName,
		Quantity:         order.Quantity,
		PickupLocation:   order.PickupLocation,
		PickupTimeSlot:   order.PickupTimeSlot,
		PhoneNumber:      order.PhoneNumber,
		Email:            types.NormalizeEmail(order.Email),
		TotalPrice:       order.TotalPrice,
		PricePerItem:     pricePerItem,
		Currency:         "CAD",
		Address:          address,
		EventDate:        eventDate,
		EtransferEnabled: etransferEnabled,
		EtransferEmail:   etransferEmail,
		Reminder:         reminder,
	}, nil
}

// IsDedupeConflict reports whether an error is the dedupe key conflict raised
// by a concurrent insert racing the same (type, order) pair.
func IsDedupeConflict(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictDedupeKey
}
