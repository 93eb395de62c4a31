package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/parkwind-erp/parkwind-erp/internal/allocation"
)

// NewAllocationWarmHandler returns the handler for TaskAllocationWarm. It
// loads the allocation and primes the Redis detail cache so the first
// invoicing read is served hot.
func NewAllocationWarmHandler(service *allocation.Service, cache *allocation.Cache, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AllocationWarmPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		alloc, err := service.Get(ctx, payload.TenantID, payload.AllocationID)
		if err != nil {
			if errors.Is(err, allocation.ErrNotFound) {
				// Voided or deleted before the task ran; nothing to warm.
				return asynq.SkipRetry
			}
			return err
		}

		detail, err := json.Marshal(allocation.NewAllocationResponse(alloc))
		if err != nil {
			return asynq.SkipRetry
		}
		cache.SetDetail(ctx, payload.TenantID, payload.AllocationID, detail)

		if logger != nil {
			logger.Info("allocation cache warmed",
				slog.Int64("tenant", payload.TenantID),
				slog.Int64("allocation", payload.AllocationID),
			)
		}
		return nil
	}
}
