package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedis starts a Redis instance using testcontainers
func setupRedis(t *testing.T) (*redis.Client, func()) {
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx := context.Background()

	container, err := redisTC.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "Failed to start Redis container")

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err())

	cleanup := func() {
		client.Close()
		container.Terminate(ctx)
	}
	return client, cleanup
}

func TestRedis_Window(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	limiter := NewRedis(client, 2*time.Second)

	d, err := limiter.Admit(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Admit(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.Wait, time.Duration(0))
	assert.LessOrEqual(t, d.WaitSeconds(), 2)

	d, err = limiter.Admit(ctx, 2, time.Now())
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	assert.Eventually(t, func() bool {
		d, err := limiter.Admit(ctx, 1, time.Now())
		return err == nil && d.Allowed
	}, 5*time.Second, 100*time.Millisecond)
}
