//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"trafficwatch/internal/platform/config"
	"trafficwatch/pkg/testutil/containers"
)

func TestNewConnects(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	defer rc.Terminate(ctx)

	client, err := New(ctx, config.RedisConfig{URL: rc.URL, PoolSize: 4})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	require.NoError(t, client.Ping(ctx).Err())
}
