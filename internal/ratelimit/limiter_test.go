package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/npezzotti/medchat/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewLimiter(testutil.TestLogger(t), client, limit, window), mr
}

func TestLimiterAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects sends over the limit", func(t *testing.T) {
		l, _ := newTestLimiter(t, 3, time.Minute)

		for i := 0; i < 3; i++ {
			allowed, err := l.Allow(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, allowed, "expected send %d to be allowed", i+1)
		}

		allowed, err := l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, allowed, "expected send over the limit to be rejected")

		allowed, err = l.Allow(ctx, "u2")
		require.NoError(t, err)
		assert.True(t, allowed, "expected other users to keep their own window")
	})

	t.Run("first send starts the window", func(t *testing.T) {
		l, mr := newTestLimiter(t, 3, time.Minute)

		_, err := l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"u1"))

		mr.FastForward(20 * time.Second)
		_, err = l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 40*time.Second, mr.TTL(keyPrefix+"u1"), "expected later sends to keep the ttl")

		count, err := mr.Get(keyPrefix + "u1")
		require.NoError(t, err)
		assert.Equal(t, "2", count)
	})

	t.Run("count resets after the window", func(t *testing.T) {
		l, mr := newTestLimiter(t, 1, time.Minute)

		allowed, err := l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, allowed)

		mr.FastForward(time.Minute)
		assert.False(t, mr.Exists(keyPrefix+"u1"), "expected counter to expire")

		allowed, err = l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, allowed, "expected a fresh window after expiry")
	})
}

func TestLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewLimiter(testutil.TestLogger(t), client, 1, time.Second)

	allowed, err := l.Allow(context.Background(), "u1")
	assert.Error(t, err, "expected redis error to be returned")
	assert.True(t, allowed, "expected request to be allowed when redis is unavailable")
}
