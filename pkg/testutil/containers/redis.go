//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer is a throwaway Redis server with a connected client. Tests
// isolate themselves by key prefix rather than flushing the database.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedisContainer starts Redis 7 and fails the test if it is not reachable.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")

	rc := &RedisContainer{Container: container}
	fail := func(msg string, err error) {
		rc.Terminate(ctx)
		require.NoError(t, err, msg)
	}

	if rc.URL, err = container.ConnectionString(ctx); err != nil {
		fail("redis connection string", err)
	}
	opts, err := redis.ParseURL(rc.URL)
	if err != nil {
		fail("parse redis url", err)
	}
	rc.Client = redis.NewClient(opts)
	if err := rc.Client.Ping(ctx).Err(); err != nil {
		fail("ping redis", err)
	}
	return rc
}

// Terminate closes the client and stops the container.
func (r *RedisContainer) Terminate(ctx context.Context) {
	if r.Client != nil {
		_ = r.Client.Close()
	}
	_ = r.Container.Terminate(ctx)
}
