//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegrationRentalCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	digest := "test-digest-" + time.Now().Format("150405.000000000")

	rental := &model.CachedRental{
		RentalID:  "r1",
		ModelID:   "m1",
		Customer:  "0xabc",
		ExpiresAt: time.Now().Add(time.Hour),
		Active:    true,
	}
	require.NoError(t, c.SetRental(ctx, digest, rental))

	got, err := c.GetRental(ctx, digest)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "m1", got.ModelID)

	ttl, err := c.Client().TTL(ctx, rentalCachePrefix+digest).Result()
	require.NoError(t, err)
	require.LessOrEqual(t, ttl, rentalCacheTTL)

	require.NoError(t, c.DeleteRental(ctx, digest))
	got, err = c.GetRental(ctx, digest)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestIntegrationRentalCache_SkipsExpired(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	digest := "expired-digest-" + time.Now().Format("150405.000000000")

	require.NoError(t, c.SetRental(ctx, digest, &model.CachedRental{
		RentalID:  "r2",
		ExpiresAt: time.Now().Add(-time.Second),
		Active:    true,
	}))

	got, err := c.GetRental(ctx, digest)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestIntegrationRateLimit_RentalBucket(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	rentalID := "bucket-" + time.Now().Format("150405.000000000")

	for i := 0; i < 3; i++ {
		res, err := c.CheckRentalRateLimit(ctx, rentalID, 1, 3)
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d should be allowed", i)
	}

	res, err := c.CheckRentalRateLimit(ctx, rentalID, 1, 3)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}
