package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tealbay/nftmarketd/internal/domain"
)

// Royalty schedules change rarely, so they tolerate a longer TTL than the
// listing and bid sets.
const royaltyTTL = 10 * time.Minute

// RoyaltyCache implements domain.RoyaltyCache using Redis string keys with
// JSON-serialized schedules, keyed by the royalty token unit.
type RoyaltyCache struct {
	rdb *redis.Client
}

// NewRoyaltyCache creates a RoyaltyCache backed by the given Client.
func NewRoyaltyCache(c *Client) *RoyaltyCache {
	return &RoyaltyCache{rdb: c.Underlying()}
}

func royaltyKey(unit string) string { return "royalty:" + unit }

// Set stores a royalty schedule.
func (rc *RoyaltyCache) Set(ctx context.Context, unit string, info domain.RoyaltyInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("redis: marshal royalty %s: %w", unit, err)
	}
	if err := rc.rdb.Set(ctx, royaltyKey(unit), data, royaltyTTL).Err(); err != nil {
		return fmt.Errorf("redis: set royalty %s: %w", unit, err)
	}
	return nil
}

// Get retrieves a royalty schedule by token unit.
// It returns domain.ErrNotFound when the key does not exist.
func (rc *RoyaltyCache) Get(ctx context.Context, unit string) (domain.RoyaltyInfo, error) {
	data, err := rc.rdb.Get(ctx, royaltyKey(unit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RoyaltyInfo{}, domain.ErrNotFound
		}
		return domain.RoyaltyInfo{}, fmt.Errorf("redis: get royalty %s: %w", unit, err)
	}

	var info domain.RoyaltyInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.RoyaltyInfo{}, fmt.Errorf("redis: unmarshal royalty %s: %w", unit, err)
	}
	return info, nil
}

// Invalidate removes a cached royalty schedule. Called after UpdateRoyalty.
func (rc *RoyaltyCache) Invalidate(ctx context.Context, unit string) error {
	if err := rc.rdb.Del(ctx, royaltyKey(unit)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate royalty %s: %w", unit, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RoyaltyCache = (*RoyaltyCache)(nil)
