package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lokumail/internal/types"
)

// mockDBTX implements DBTX for repository tests.
type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// errRow is a pgx.Row whose Scan always fails with the given error.
type errRow struct {
	err error
}

func (r *errRow) Scan(dest ...any) error { return r.err }

// jobRow is a pgx.Row yielding one email_jobs row in jobColumns order.
type jobRow struct {
	job types.EmailJob
}

func (r *jobRow) Scan(dest ...any) error {
	j := r.job
	*dest[0].(*string) = j.ID
	*dest[1].(**string) = j.BatchID
	*dest[2].(*string) = string(j.Type)
	*dest[3].(*string) = string(j.Status)
	*dest[4].(*string) = j.DedupeKey
	*dest[5].(*string) = j.OrderID
	*dest[6].(**string) = strPtrOrNil(j.ToEmail)
	*dest[7].(**string) = strPtrOrNil(j.FromEmail)
	*dest[8].(**string) = strPtrOrNil(j.ReplyToEmail)
	*dest[9].(**string) = strPtrOrNil(j.Subject)
	if j.Payload != nil {
		*dest[10].(*types.OrderEmailPayload) = *j.Payload
	}
	*dest[11].(**string) = strPtrOrNil(j.ProviderMessageID)
	*dest[12].(*int) = j.AttemptCount
	*dest[13].(*int) = j.MaxAttempts
	*dest[14].(*time.Time) = j.NextAttemptAt
	*dest[15].(**time.Time) = j.LockedUntil
	*dest[16].(**string) = strPtrOrNil(j.LockedBy)
	*dest[17].(**string) = strPtrOrNil(j.LastError)
	*dest[18].(*time.Time) = j.CreatedAt
	*dest[19].(*time.Time) = j.UpdatedAt
	*dest[20].(**time.Time) = j.SentAt
	return nil
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func TestJobRepoCreateMapsDedupeConflict(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	repo := NewJobRepository(dbtx)
	err := repo.Create(context.Background(), &types.EmailJob{
		ID:        "job-1",
		DedupeKey: "order_confirmation:o1",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictDedupeKey, appErr.Code)
}

func TestJobRepoCreateWrapsDBError(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	repo := NewJobRepository(dbtx)
	err := repo.Create(context.Background(), &types.EmailJob{ID: "job-1"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestJobRepoGetByDedupeKeyMiss(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&errRow{err: pgx.ErrNoRows})

	repo := NewJobRepository(dbtx)
	job, err := repo.GetByDedupeKey(context.Background(), "order_confirmation:missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobRepoLeaseNextNothingRunnable(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&errRow{err: pgx.ErrNoRows})

	repo := NewJobRepository(dbtx)
	job, err := repo.LeaseNext(context.Background(), "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobRepoLeaseNextScansJob(t *testing.T) {
	now := time.Now().UTC()
	leased := types.EmailJob{
		ID:            "job-1",
		Type:          types.JobTypeOrderConfirmation,
		Status:        types.JobStatusSending,
		DedupeKey:     "order_confirmation:o1",
		OrderID:       "o1",
		ToEmail:       "a@x.com",
		FromEmail:     "orders@lokucaters.com",
		Payload:       &types.OrderEmailPayload{ItemName: "Lamprais"},
		AttemptCount:  2,
		MaxAttempts:   8,
		NextAttemptAt: now,
		LockedBy:      "worker-1",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	dbtx := &mockDBTX{}
	dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&jobRow{job: leased})

	repo := NewJobRepository(dbtx)
	job, err := repo.LeaseNext(context.Background(), "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, types.JobStatusSending, job.Status)
	assert.Equal(t, "worker-1", job.LockedBy)
	assert.Equal(t, 2, job.AttemptCount)
	require.NotNil(t, job.Payload)
	assert.Equal(t, "Lamprais", job.Payload.ItemName)
}

func TestJobRepoMarkSentNotFound(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	repo := NewJobRepository(dbtx)
	err := repo.MarkSent(context.Background(), "missing", "subject", "m1")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundJob, appErr.Code)
}

func TestJobRepoCancelConflictOnTerminalJob(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&jobRow{job: types.EmailJob{ID: "job-1", Status: types.JobStatusSent}})

	repo := NewJobRepository(dbtx)
	err := repo.Cancel(context.Background(), "job-1")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictJobState, appErr.Code)
}

func TestJobRepoCancelNotFound(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&errRow{err: pgx.ErrNoRows})

	repo := NewJobRepository(dbtx)
	err := repo.Cancel(context.Background(), "missing")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundJob, appErr.Code)
}

func TestJobRepoRetryFailedConflict(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&jobRow{job: types.EmailJob{ID: "job-1", Status: types.JobStatusQueued}})

	repo := NewJobRepository(dbtx)
	err := repo.RetryFailed(context.Background(), "job-1")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictJobState, appErr.Code)
}

func TestJobRepoReopenRequiresCancelledRow(t *testing.T) {
	dbtx := &mockDBTX{}
	dbtx.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&errRow{err: pgx.ErrNoRows})

	repo := NewJobRepository(dbtx)
	_, err := repo.Reopen(context.Background(), "job-1", types.ReopenParams{
		Status: types.JobStatusQueued,
	})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictJobState, appErr.Code)
}
