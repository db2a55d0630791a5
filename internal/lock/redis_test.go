package lock

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisLock(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	l := NewRedis(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.Prefix = "sendhelp:test:" + uuid.NewString() + ":"

	release, err := l.Acquire(ctx, "sender:1", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "sender:1", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)
	release()

	stale, err := l.Acquire(ctx, "sender:2", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	fresh, err := l.Acquire(ctx, "sender:2", time.Minute)
	require.NoError(t, err)
	stale()
	_, err = l.Acquire(ctx, "sender:2", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)
	fresh()
}
