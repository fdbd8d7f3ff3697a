package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "events:seen:"

// SeenCache implements domain.SeenCache on Redis. It only saves extraction
// cost on repeat runs; idempotency is enforced by the store's uniqueness
// constraint, so every failure here degrades to "not seen".
type SeenCache struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewSeenCache creates a new Redis-backed seen cache.
func NewSeenCache(client *redis.Client, logger *slog.Logger, ttl time.Duration) *SeenCache {
	return &SeenCache{
		client: client,
		logger: logger.With("component", "seen_cache"),
		ttl:    ttl,
	}
}

// Seen reports whether the source message id was recorded recently.
func (c *SeenCache) Seen(ctx context.Context, sourceMessageID string) bool {
	n, err := c.client.Exists(ctx, seenKeyPrefix+sourceMessageID).Result()
	if err != nil {
		c.logger.Warn("seen lookup failed, treating as not seen", "error", err)
		return false
	}
	return n > 0
}

// MarkSeen records ids after a successful batch write.
func (c *SeenCache) MarkSeen(ctx context.Context, sourceMessageIDs ...string) {
	if len(sourceMessageIDs) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for _, id := range sourceMessageIDs {
		pipe.Set(ctx, seenKeyPrefix+id, 1, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("failed to record seen ids", "error", err, "count", len(sourceMessageIDs))
	}
}
