package types

// JobType identifies the kind of transactional email a job delivers.
type JobType string

const (
	JobTypeOrderConfirmation JobType = "order_confirmation"
	JobTypePickupReminder    JobType = "pickup_reminder"
)

// JobStatus represents the lifecycle state of an email job.
// These values MUST match the status values stored in the email_jobs table.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusSending    JobStatus = "sending"
	JobStatusSent       JobStatus = "sent"
	JobStatusFailed     JobStatus = "failed"
	JobStatusSuppressed JobStatus = "suppressed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is one the worker never acts on again.
// A cancelled job is terminal for the worker but remains eligible for
// in-place reuse by the enqueue service.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSent, JobStatusFailed, JobStatusSuppressed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// EnqueueOutcome is the closed set of results an enqueue call can produce.
// Expected business conditions are reported through these values, never
// through errors.
type EnqueueOutcome string

const (
	OutcomeQueued                 EnqueueOutcome = "queued"
	OutcomeAlreadyQueued          EnqueueOutcome = "already_queued"
	OutcomeAlreadySent            EnqueueOutcome = "already_sent"
	OutcomeSuppressed             EnqueueOutcome = "suppressed"
	OutcomeFailedToQueue          EnqueueOutcome = "failed_to_queue"
	OutcomeSkippedMissingOrder    EnqueueOutcome = "skipped_missing_order"
	OutcomeSkippedNotConfirmed    EnqueueOutcome = "skipped_not_confirmed"
	OutcomeSkippedMissingEmail    EnqueueOutcome = "skipped_missing_email"
	OutcomeSkippedExcluded        EnqueueOutcome = "skipped_excluded"
	OutcomeSkippedAlreadyReminded EnqueueOutcome = "skipped_already_reminded"
)

// OrderStatus mirrors the order lifecycle owned by the ordering subsystem.
// Only confirmed orders may receive pickup reminders.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPickedUp  OrderStatus = "picked_up"
	OrderStatusNoShow    OrderStatus = "no_show"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// SuppressionReason classifies why an address was added to the suppression list.
type SuppressionReason string

const (
	SuppressionReasonBounce    SuppressionReason = "bounce"
	SuppressionReasonComplaint SuppressionReason = "complaint"
)
