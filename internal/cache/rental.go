package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	// rentalCachePrefix is the Redis key prefix for validated rentals, keyed by token digest.
	rentalCachePrefix = "rental:tok:"
	// rentalCacheTTL caps how long a rental stays cached.
	rentalCacheTTL = 5 * time.Minute
)

// GetRental retrieves a cached rental by token digest.
// Returns nil if not found (cache miss).
func (c *Cache) GetRental(ctx context.Context, digest string) (*model.CachedRental, error) {
	data, err := c.client.Get(ctx, rentalCachePrefix+digest).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached rental: %w", err)
	}

	var cached model.CachedRental
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}
	return &cached, nil
}

// SetRental caches a rental until it expires or rentalCacheTTL elapses, whichever is first.
// Expired or inactive rentals are not cached.
func (c *Cache) SetRental(ctx context.Context, digest string, rental *model.CachedRental) error {
	ttl := rentalTTL(c.now(), rental.ExpiresAt)
	if ttl <= 0 || !rental.Active {
		return nil
	}

	data, err := json.Marshal(rental)
	if err != nil {
		return fmt.Errorf("marshal rental: %w", err)
	}
	return c.client.Set(ctx, rentalCachePrefix+digest, data, ttl).Err()
}

// DeleteRental removes a cached rental. Used when a rental is revoked.
func (c *Cache) DeleteRental(ctx context.Context, digest string) error {
	return c.client.Del(ctx, rentalCachePrefix+digest).Err()
}

func rentalTTL(now, expiresAt time.Time) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining < rentalCacheTTL {
		return remaining
	}
	return rentalCacheTTL
}
