// Package jobs defines background tasks and the Asynq worker that runs them.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAllocationWarm primes the allocation read cache after a run.
	TaskAllocationWarm = "allocation:cache_warm"
)

// AllocationWarmPayload identifies the allocation to warm.
type AllocationWarmPayload struct {
	TenantID     int64 `json:"tenant_id"`
	AllocationID int64 `json:"allocation_id"`
}

// NewAllocationWarmTask constructs an Asynq task.
func NewAllocationWarmTask(payload AllocationWarmPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAllocationWarm, data), nil
}

// Client enqueues background tasks. It satisfies allocation.TaskEnqueuer.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an Asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// EnqueueAllocationWarm schedules a cache warm for one allocation.
func (c *Client) EnqueueAllocationWarm(ctx context.Context, tenantID, allocationID int64) error {
	task, err := NewAllocationWarmTask(AllocationWarmPayload{
		TenantID:     tenantID,
		AllocationID: allocationID,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases the underlying Asynq client.
func (c *Client) Close() error {
	return c.client.Close()
}
