package redis_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/dukex/licensehub/pkg/persistence/persistencetest"
	redispersistence "github.com/dukex/licensehub/pkg/persistence/redis"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var redisContainer *tcredis.RedisContainer

func setupRedis(t *testing.T) (redis.UniversalClient, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if redisContainer == nil || !redisContainer.IsRunning() {
		var err error

		redisContainer, err = tcredis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err)
	}

	connectionString, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(connectionString)
	require.NoError(t, err)

	client := redis.NewClient(options)
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		_ = client.Close()

		cancel()
	})

	return client, ctx
}

func TestMain(m *testing.M) {
	code := m.Run()

	if redisContainer != nil {
		_ = testcontainers.TerminateContainer(redisContainer)
	}

	os.Exit(code)
}

func TestRedisPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		client, _ := setupRedis(t)

		return redispersistence.NewPersistenceFromClient(client, slog.Default())
	})
}

func TestRedisPersistence_NewFromURL(t *testing.T) {
	_, ctx := setupRedis(t)

	connectionString, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	p, err := redispersistence.NewPersistence(ctx, slog.Default(), connectionString)
	require.NoError(t, err)

	inst := persistencetest.NewInstance("wf-url", time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, p.Instances().Create(ctx, inst))

	listed, err := p.Instances().List(ctx, persistence.InstanceFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "wf-url", listed[0].ID)

	require.NoError(t, p.Close(ctx))
}

func TestRedisPersistence_InvalidURL(t *testing.T) {
	_, err := redispersistence.NewPersistence(context.Background(), slog.Default(), "http://not-redis")
	assert.Error(t, err)
}
