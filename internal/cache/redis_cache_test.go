package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/property-import-service/internal/utils"
)

type snapshot struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

func TestNoopCache(t *testing.T) {
	c := NewNoopCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", snapshot{Status: "pending"}, time.Minute))
	var got snapshot
	assert.True(t, errors.Is(c.Get(ctx, "k", &got), ErrCacheMiss))
	assert.NoError(t, c.Delete(ctx, "k"))
}

// Runs against a real server when TEST_REDIS_URL is set.
func TestRedisCache_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client, utils.NewNopLogger())

	require.NoError(t, c.Set(ctx, "test_import_job:org:1", snapshot{Status: "validating", Progress: 20}, time.Minute))
	require.NoError(t, c.Set(ctx, "test_import_job:org:2", snapshot{Status: "validated", Progress: 50}, time.Minute))

	var got snapshot
	require.NoError(t, c.Get(ctx, "test_import_job:org:1", &got))
	assert.Equal(t, snapshot{Status: "validating", Progress: 20}, got)

	require.NoError(t, c.Delete(ctx, "test_import_job:org:1"))
	assert.ErrorIs(t, c.Get(ctx, "test_import_job:org:1", &got), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "test_import_job:org:2", &got))
	assert.Equal(t, "validated", got.Status)
	require.NoError(t, c.Delete(ctx, "test_import_job:org:2"))
}
