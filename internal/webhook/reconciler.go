package webhook

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"lokumail/internal/telemetry"
	"lokumail/internal/types"
)

// JobStore is the job lookup surface reconciliation needs.
type JobStore interface {
	GetByProviderMessageID(ctx context.Context, messageID string) (*types.EmailJob, error)
}

// EventStore is the append-only event log.
type EventStore interface {
	Append(ctx context.Context, event *types.EmailEvent) error
}

// SuppressionStore is the suppression write surface reconciliation needs.
type SuppressionStore interface {
	Upsert(ctx context.Context, s *types.EmailSuppression) (bool, error)
}

// ReconcilerConfig holds the dependencies for constructing a Reconciler.
type ReconcilerConfig struct {
	Jobs         JobStore
	Events       EventStore
	Suppressions SuppressionStore
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
}

// Reconciler ingests verified provider events. Every event is recorded, even
// when correlation to a job fails; bounces and complaints additionally grow
// the suppression list.
type Reconciler struct {
	jobs         JobStore
	events       EventStore
	suppressions SuppressionStore
	metrics      *telemetry.Metrics
	logger       *slog.Logger
}

// NewReconciler creates a webhook reconciler. Logger defaults to slog.Default().
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		jobs:         cfg.Jobs,
		events:       cfg.Events,
		suppressions: cfg.Suppressions,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Ingest processes one verified, decoded provider event payload. Provider
// redelivery of the same event appends a second event row; the suppression
// upsert stays idempotent.
func (r *Reconciler) Ingest(ctx context.Context, payload types.JSONMap) error {
	eventType := extractEventType(payload)
	messageID := extractMessageID(payload)

	var jobID *string
	if messageID != "" {
		job, err := r.jobs.GetByProviderMessageID(ctx, messageID)
		if err != nil {
			return err
		}
		if job != nil {
			jobID = &job.ID
		}
	}

	event := &types.EmailEvent{
		ID:                uuid.NewString(),
		JobID:             jobID,
		ProviderMessageID: messageID,
		EventType:         eventType,
		Payload:           payload,
	}
	if err := r.events.Append(ctx, event); err != nil {
		return err
	}
	r.metrics.ObserveWebhookEvent(eventType)

	suppress, reason := classifyForSuppression(eventType)
	if !suppress {
		return nil
	}

	toEmail := types.NormalizeEmail(extractRecipient(payload))
	if toEmail == "" {
		r.logger.Warn("bounce event without recipient", "event_type", eventType, "resend_message_id", messageID)
		return nil
	}

	inserted, err := r.suppressions.Upsert(ctx, &types.EmailSuppression{
		Email:  toEmail,
		Reason: reason,
		Source: "resend_webhook",
		Meta: types.JSONMap{
			"event_type":        eventType,
			"resend_message_id": messageID,
		},
	})
	if err != nil {
		return err
	}
	if inserted {
		r.metrics.ObserveSuppression(string(reason))
		r.logger.Info("recipient suppressed",
			"reason", reason,
			"event_type", eventType,
			"resend_message_id", messageID,
		)
	}
	return nil
}

// extractEventType tolerates the field name drifting across provider payload
// versions.
func extractEventType(payload types.JSONMap) string {
	for _, key := range []string{"type", "event", "name"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return "unknown"
}

func extractMessageID(payload types.JSONMap) string {
	data, ok := payload["data"].(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"email_id", "emailId", "id"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func extractRecipient(payload types.JSONMap) string {
	data, ok := payload["data"].(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"to", "recipient", "email"} {
		switch v := data[key].(type) {
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					return s
				}
			}
		case string:
			if v != "" {
				return v
			}
		}
	}
	return ""
}

func classifyForSuppression(eventType string) (bool, types.SuppressionReason) {
	lower := strings.ToLower(eventType)
	if strings.Contains(lower, "bounce") {
		return true, types.SuppressionReasonBounce
	}
	if strings.Contains(lower, "complain") {
		return true, types.SuppressionReasonComplaint
	}
	return false, ""
}
