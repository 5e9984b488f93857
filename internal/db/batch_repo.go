package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lokumail/internal/types"
)

// BatchRepository provides PostgreSQL-backed access to the email_batches table.
type BatchRepository struct {
	db DBTX
}

// NewBatchRepository creates a batch repository backed by the given database handle.
func NewBatchRepository(db DBTX) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch row.
func (r *BatchRepository) Create(ctx context.Context, batch *types.EmailBatch) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO email_batches (id, kind, created_by, meta, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		batch.ID, batch.Kind, nilIfEmpty(batch.CreatedBy), batch.Meta)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create email batch", err)
	}
	return nil
}

// GetByID returns the batch with the given id, or (nil, nil) if none exists.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*types.EmailBatch, error) {
	var (
		batch     types.EmailBatch
		createdBy *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, kind, created_by, meta, created_at
		FROM email_batches WHERE id = $1`, id).
		Scan(&batch.ID, &batch.Kind, &createdBy, &batch.Meta, &batch.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get email batch", err)
	}
	batch.CreatedBy = valueOrEmpty(createdBy)
	return &batch, nil
}

// Delete removes a batch. Jobs referencing it keep their rows; the foreign
// key nulls their batch_id.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM email_batches WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete email batch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundBatch,
			fmt.Sprintf("batch %s not found", id), nil)
	}
	return nil
}
