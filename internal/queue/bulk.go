package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lokumail/internal/types"
)

func utcNow() time.Time {
	return time.Now().UTC()
}

// CreateBatch records a new batch grouping the jobs of one bulk operation.
func (s *Service) CreateBatch(ctx context.Context, kind, createdBy string, meta types.JSONMap) (*types.EmailBatch, error) {
	if meta == nil {
		meta = types.JSONMap{}
	}
	batch := &types.EmailBatch{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedBy: createdBy,
		Meta:      meta,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// BulkRemindResult summarizes one bulk reminder run: the batch that groups
// the created jobs and how many orders landed on each outcome.
type BulkRemindResult struct {
	Batch    *types.EmailBatch
	Total    int
	Outcomes map[types.EnqueueOutcome]int
}

// BulkRemind enqueues a pickup reminder for every confirmed order under one
// batch. Each order goes through the full per-order guard chain, so already
// reminded, excluded, and suppressed orders are counted rather than mailed.
// A per-order infrastructure failure counts as failed_to_queue and does not
// abort the run.
func (s *Service) BulkRemind(ctx context.Context, createdBy string, force bool) (*BulkRemindResult, error) {
	orderIDs, err := s.orders.ListConfirmedIDs(ctx)
	if err != nil {
		return nil, err
	}

	batch, err := s.CreateBatch(ctx, "bulk_reminder", createdBy, types.JSONMap{
		"order_count": len(orderIDs),
		"force":       force,
	})
	if err != nil {
		return nil, err
	}

	result := &BulkRemindResult{
		Batch:    batch,
		Total:    len(orderIDs),
		Outcomes: make(map[types.EnqueueOutcome]int),
	}
	for _, orderID := range orderIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.Enqueue(ctx, orderID, types.JobTypePickupReminder, Options{
			BatchID: &batch.ID,
			Force:   force,
		})
		if err != nil {
			s.logger.Error("bulk reminder enqueue failed",
				"order_id", orderID,
				"batch_id", batch.ID,
				"error", err,
			)
			result.Outcomes[types.OutcomeFailedToQueue]++
			continue
		}
		result.Outcomes[res.Outcome]++
	}

	s.logger.Info("bulk reminder run complete",
		"batch_id", batch.ID,
		"total", result.Total,
		"queued", result.Outcomes[types.OutcomeQueued],
	)
	return result, nil
}
