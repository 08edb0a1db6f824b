package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "medchat:rl:send:"

// Limiter is a fixed window counter per user kept in Redis with INCR and
// EXPIRE. Redis failures let the request through.
type Limiter struct {
	client redis.Cmdable
	log    *log.Logger
	limit  int
	window time.Duration
}

func NewLimiter(logger *log.Logger, client redis.Cmdable, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		log:    logger,
		limit:  limit,
		window: window,
	}
}

// Allow counts one send for userId and reports whether it fits in the
// current window. On error it returns true along with the error.
func (l *Limiter) Allow(ctx context.Context, userId string) (bool, error) {
	key := keyPrefix + userId

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Printf("ratelimit: incr %s: %v", key, err)
		return true, fmt.Errorf("incr: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.log.Printf("ratelimit: expire %s: %v", key, err)
			// a key without ttl would block the user for good
			l.client.Del(ctx, key)
			return true, fmt.Errorf("expire: %w", err)
		}
	}

	return int(count) <= l.limit, nil
}
