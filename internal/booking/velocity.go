package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// Limiter throttles token blocks per user.
type Limiter interface {
	Allow(ctx context.Context, userID string) bool
}

// BlockLimiter counts block attempts per user in a fixed Redis window.
type BlockLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
	logger *logging.Logger
}

func NewBlockLimiter(client *redis.Client, max int, window time.Duration, logger *logging.Logger) *BlockLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	return &BlockLimiter{redis: client, max: max, window: window, logger: logger}
}

// Allow fails open: when Redis is unavailable the block is allowed. The
// window's TTL is created in the same MULTI as the first increment, so a
// counter never outlives its window.
func (l *BlockLimiter) Allow(ctx context.Context, userID string) bool {
	if l == nil || l.redis == nil || l.max <= 0 || userID == "" {
		return true
	}
	ctx, span := bookingTracer.Start(ctx, "velocity.check_block")
	defer span.End()

	key := fmt.Sprintf("velocity:block:%s", userID)
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, key, 0, l.window)
		incr = p.Incr(ctx, key)
		return nil
	})
	if err != nil {
		l.logger.Error("velocity check failed", "error", err, "key", key)
		return true
	}
	count := incr.Val()
	if int(count) > l.max {
		l.logger.Warn("block velocity exceeded", "user_id", userID, "count", count, "max", l.max)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
		return false
	}
	return true
}

// Reset clears a user's counter (admin use).
func (l *BlockLimiter) Reset(ctx context.Context, userID string) error {
	return l.redis.Del(ctx, fmt.Sprintf("velocity:block:%s", userID)).Err()
}
