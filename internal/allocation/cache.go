package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the Redis read cache for allocation detail payloads consumed by
// downstream invoicing. Allocations are immutable once created, so entries
// only need invalidation on void.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache builds Cache instance.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func detailKey(tenantID, allocationID int64) string {
	return fmt.Sprintf("alloc:%d:%d", tenantID, allocationID)
}

// GetDetail returns the cached payload, if present. Cache failures degrade
// to a miss.
func (c *Cache) GetDetail(ctx context.Context, tenantID, allocationID int64) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, detailKey(tenantID, allocationID)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("allocation cache get", slog.Any("error", err))
		}
		return nil, false
	}
	return payload, true
}

// SetDetail stores the payload under the configured TTL.
func (c *Cache) SetDetail(ctx context.Context, tenantID, allocationID int64, payload []byte) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, detailKey(tenantID, allocationID), payload, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("allocation cache set", slog.Any("error", err))
	}
}

// Invalidate drops the cached payload for one allocation.
func (c *Cache) Invalidate(ctx context.Context, tenantID, allocationID int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, detailKey(tenantID, allocationID)).Err(); err != nil && c.logger != nil {
		c.logger.Warn("allocation cache invalidate", slog.Any("error", err))
	}
}
