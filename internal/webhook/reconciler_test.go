package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lokumail/internal/types"
)

// --- Test Doubles ---

type fakeReconJobStore struct {
	jobsByMessageID map[string]*types.EmailJob
}

func (f *fakeReconJobStore) GetByProviderMessageID(ctx context.Context, messageID string) (*types.EmailJob, error) {
	return f.jobsByMessageID[messageID], nil
}

type fakeEventStore struct {
	events []*types.EmailEvent
}

func (f *fakeEventStore) Append(ctx context.Context, event *types.EmailEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeSuppressionWriter struct {
	entries map[string]*types.EmailSuppression
}

func (f *fakeSuppressionWriter) Upsert(ctx context.Context, s *types.EmailSuppression) (bool, error) {
	if _, ok := f.entries[s.Email]; ok {
		return false, nil
	}
	f.entries[s.Email] = s
	return true, nil
}

type reconEnv struct {
	reconciler   *Reconciler
	jobs         *fakeReconJobStore
	events       *fakeEventStore
	suppressions *fakeSuppressionWriter
}

func newReconEnv() *reconEnv {
	jobs := &fakeReconJobStore{jobsByMessageID: make(map[string]*types.EmailJob)}
	events := &fakeEventStore{}
	suppressions := &fakeSuppressionWriter{entries: make(map[string]*types.EmailSuppression)}
	reconciler := NewReconciler(ReconcilerConfig{
		Jobs:         jobs,
		Events:       events,
		Suppressions: suppressions,
	})
	return &reconEnv{reconciler: reconciler, jobs: jobs, events: events, suppressions: suppressions}
}

func bouncePayload(email string) types.JSONMap {
	return types.JSONMap{
		"type": "email.bounced",
		"data": map[string]any{
			"email_id": "msg-1",
			"to":       []any{email},
		},
	}
}

// --- Tests ---

func TestIngestCorrelatesJobAndAppendsEvent(t *testing.T) {
	env := newReconEnv()
	env.jobs.jobsByMessageID["msg-1"] = &types.EmailJob{ID: "job-1"}

	require.NoError(t, env.reconciler.Ingest(context.Background(), types.JSONMap{
		"type": "email.delivered",
		"data": map[string]any{"email_id": "msg-1"},
	}))

	require.Len(t, env.events.events, 1)
	event := env.events.events[0]
	assert.Equal(t, "email.delivered", event.EventType)
	assert.Equal(t, "msg-1", event.ProviderMessageID)
	require.NotNil(t, event.JobID)
	assert.Equal(t, "job-1", *event.JobID)
	assert.Empty(t, env.suppressions.entries)
}

func TestIngestUncorrelatedEventStillRecorded(t *testing.T) {
	env := newReconEnv()

	require.NoError(t, env.reconciler.Ingest(context.Background(), types.JSONMap{
		"type": "email.delivered",
		"data": map[string]any{"email_id": "unknown-msg"},
	}))

	require.Len(t, env.events.events, 1)
	assert.Nil(t, env.events.events[0].JobID)
}

func TestIngestBounceSuppressesRecipient(t *testing.T) {
	env := newReconEnv()

	require.NoError(t, env.reconciler.Ingest(context.Background(), bouncePayload("Bounced@X.com ")))

	entry, ok := env.suppressions.entries["bounced@x.com"]
	require.True(t, ok, "address is normalized before suppression")
	assert.Equal(t, types.SuppressionReasonBounce, entry.Reason)
	assert.Equal(t, "resend_webhook", entry.Source)
	assert.Equal(t, "email.bounced", entry.Meta["event_type"])
}

func TestIngestDuplicateBounceKeepsOneSuppressionTwoEvents(t *testing.T) {
	env := newReconEnv()

	require.NoError(t, env.reconciler.Ingest(context.Background(), bouncePayload("a@x.com")))
	require.NoError(t, env.reconciler.Ingest(context.Background(), bouncePayload("a@x.com")))

	assert.Len(t, env.events.events, 2)
	assert.Len(t, env.suppressions.entries, 1)
}

func TestIngestComplaintSuppresses(t *testing.T) {
	env := newReconEnv()

	require.NoError(t, env.reconciler.Ingest(context.Background(), types.JSONMap{
		"type": "email.complained",
		"data": map[string]any{"email_id": "msg-2", "to": []any{"b@x.com"}},
	}))

	entry, ok := env.suppressions.entries["b@x.com"]
	require.True(t, ok)
	assert.Equal(t, types.SuppressionReasonComplaint, entry.Reason)
}

func TestIngestBounceWithoutRecipientOnlyRecordsEvent(t *testing.T) {
	env := newReconEnv()

	require.NoError(t, env.reconciler.Ingest(context.Background(), types.JSONMap{
		"type": "email.bounced",
		"data": map[string]any{"email_id": "msg-3"},
	}))

	assert.Len(t, env.events.events, 1)
	assert.Empty(t, env.suppressions.entries)
}

func TestIngestToleratesAlternatePayloadShapes(t *testing.T) {
	env := newReconEnv()

	require.NoError(t, env.reconciler.Ingest(context.Background(), types.JSONMap{
		"event": "bounce",
		"data": map[string]any{
			"emailId":   "msg-4",
			"recipient": "c@x.com",
		},
	}))

	require.Len(t, env.events.events, 1)
	assert.Equal(t, "bounce", env.events.events[0].EventType)
	assert.Equal(t, "msg-4", env.events.events[0].ProviderMessageID)
	assert.Contains(t, env.suppressions.entries, "c@x.com")
}

func TestIngestUnknownEventType(t *testing.T) {
	env := newReconEnv()

	require.NoError(t, env.reconciler.Ingest(context.Background(), types.JSONMap{"data": map[string]any{}}))

	require.Len(t, env.events.events, 1)
	assert.Equal(t, "unknown", env.events.events[0].EventType)
}
