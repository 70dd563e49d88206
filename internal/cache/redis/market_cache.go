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

const marketTTL = 30 * time.Second

// MarketCache implements domain.MarketCache using Redis string keys holding
// JSON-serialized query results, keyed per policy.
//
// Key schema:
//
//	listings:{policyID} - JSON array of domain.ListingView
//	bids:{policyID}     - JSON array of domain.BidView
//
// The TTL is short because the backing data is on-chain state that changes
// with every settled transaction.
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func listingsKey(policyID string) string { return "listings:" + policyID }
func bidsKey(policyID string) string     { return "bids:" + policyID }

// SetListings stores the listing set for a policy.
func (mc *MarketCache) SetListings(ctx context.Context, policyID string, listings []domain.ListingView) error {
	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("redis: marshal listings %s: %w", policyID, err)
	}
	if err := mc.rdb.Set(ctx, listingsKey(policyID), data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set listings %s: %w", policyID, err)
	}
	return nil
}

// GetListings retrieves the cached listing set for a policy.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) GetListings(ctx context.Context, policyID string) ([]domain.ListingView, error) {
	data, err := mc.rdb.Get(ctx, listingsKey(policyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get listings %s: %w", policyID, err)
	}

	var listings []domain.ListingView
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("redis: unmarshal listings %s: %w", policyID, err)
	}
	return listings, nil
}

// SetBids stores the bid set for a policy.
func (mc *MarketCache) SetBids(ctx context.Context, policyID string, bids []domain.BidView) error {
	data, err := json.Marshal(bids)
	if err != nil {
		return fmt.Errorf("redis: marshal bids %s: %w", policyID, err)
	}
	if err := mc.rdb.Set(ctx, bidsKey(policyID), data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set bids %s: %w", policyID, err)
	}
	return nil
}

// GetBids retrieves the cached bid set for a policy.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) GetBids(ctx context.Context, policyID string) ([]domain.BidView, error) {
	data, err := mc.rdb.Get(ctx, bidsKey(policyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get bids %s: %w", policyID, err)
	}

	var bids []domain.BidView
	if err := json.Unmarshal(data, &bids); err != nil {
		return nil, fmt.Errorf("redis: unmarshal bids %s: %w", policyID, err)
	}
	return bids, nil
}

// Invalidate removes all cached entries for a policy. Called after any
// transaction that changes the script UTXO set for that policy.
func (mc *MarketCache) Invalidate(ctx context.Context, policyID string) error {
	if err := mc.rdb.Del(ctx, listingsKey(policyID), bidsKey(policyID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate %s: %w", policyID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
