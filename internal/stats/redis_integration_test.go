//go:build integration

package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/tollgate/internal/stats"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisSink_Record(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	sink := stats.NewRedisSink(rdb, stats.WithPrefix("test"), stats.WithTTL(time.Minute))
	at := time.Now()

	require.NoError(t, sink.Record(ctx, stats.Decision{Stage: "policy_tier", Allowed: true, Method: "GET", Path: "/orders", At: at}))
	require.NoError(t, sink.Record(ctx, stats.Decision{Stage: "policy_tier", Allowed: true, Method: "GET", Path: "/orders", At: at}))
	require.NoError(t, sink.Record(ctx, stats.Decision{Stage: "policy_tier", Allowed: false, Reason: "rate_limit_exceeded", Method: "GET", Path: "/orders", At: at}))

	totals, err := sink.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", totals["policy_tier:allowed"])
	assert.Equal(t, "1", totals["policy_tier:denied:rate_limit_exceeded"])

	_, minuteKey, routeKey := sink.Keys(at)
	ttl, err := rdb.TTL(ctx, minuteKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	routes, err := rdb.HGetAll(ctx, routeKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "2", routes["GET /orders:allowed"])
	assert.Equal(t, "1", routes["GET /orders:denied"])
}
