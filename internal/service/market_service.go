package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/trade"
)

// MarketSnapshot bundles the open positions of one minting policy.
type MarketSnapshot struct {
	PolicyID string               `json:"policy_id"`
	Listings []domain.ListingView `json:"listings"`
	Bids     []domain.BidView     `json:"bids"`
}

// MarketService serves the marketplace query surface: open listings and
// bids decoded from chain state, the royalty schedule, and settlement
// history. On-chain queries go through a short-lived cache.
type MarketService struct {
	machine    *trade.Machine
	cache      domain.MarketCache
	royalties  domain.RoyaltyCache
	activities domain.ActivityStore
	logger     *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	machine *trade.Machine,
	cache domain.MarketCache,
	royalties domain.RoyaltyCache,
	activities domain.ActivityStore,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		machine:    machine,
		cache:      cache,
		royalties:  royalties,
		activities: activities,
		logger:     logger.With(slog.String("component", "market_service")),
	}
}

// Listings returns the open listings for a policy, checking the cache first
// and falling back to chain state on a miss.
func (s *MarketService) Listings(ctx context.Context, policyID string) ([]domain.ListingView, error) {
	if cached, err := s.cache.GetListings(ctx, policyID); err == nil {
		return cached, nil
	}

	listings, err := s.machine.GetListings(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("market_service: listings %s: %w", policyID, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.SetListings(ctx, policyID, listings); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("policy_id", policyID),
			slog.String("error", cacheErr.Error()),
		)
	}

	return listings, nil
}

// Bids returns the open bids for a policy, checking the cache first and
// falling back to chain state on a miss.
func (s *MarketService) Bids(ctx context.Context, policyID string) ([]domain.BidView, error) {
	if cached, err := s.cache.GetBids(ctx, policyID); err == nil {
		return cached, nil
	}

	bids, err := s.machine.GetBids(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("market_service: bids %s: %w", policyID, err)
	}

	if cacheErr := s.cache.SetBids(ctx, policyID, bids); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("policy_id", policyID),
			slog.String("error", cacheErr.Error()),
		)
	}

	return bids, nil
}

// Snapshot resolves a policy's listings and bids in parallel.
func (s *MarketService) Snapshot(ctx context.Context, policyID string) (MarketSnapshot, error) {
	snap := MarketSnapshot{PolicyID: policyID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listings, err := s.Listings(gctx, policyID)
		if err != nil {
			return err
		}
		snap.Listings = listings
		return nil
	})
	g.Go(func() error {
		bids, err := s.Bids(gctx, policyID)
		if err != nil {
			return err
		}
		snap.Bids = bids
		return nil
	})
	if err := g.Wait(); err != nil {
		return MarketSnapshot{}, err
	}

	return snap, nil
}

// Position returns the decoded datum of one script UTXO, or nil when the
// reference does not sit at the marketplace address.
func (s *MarketService) Position(ctx context.Context, ref domain.OutRef) (*domain.TradeDatum, error) {
	datum, err := s.machine.GetListingOrBid(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("market_service: position %s: %w", ref, err)
	}
	return datum, nil
}

// Royalty returns the published royalty schedule, checking the cache first.
func (s *MarketService) Royalty(ctx context.Context) (domain.RoyaltyInfo, error) {
	unit := s.machine.RoyaltyUnit()
	if unit != "" {
		if cached, err := s.royalties.Get(ctx, unit); err == nil {
			return cached, nil
		}
	}

	info, err := s.machine.GetRoyalty(ctx)
	if err != nil {
		return domain.RoyaltyInfo{}, fmt.Errorf("market_service: royalty: %w", err)
	}

	if unit != "" {
		if cacheErr := s.royalties.Set(ctx, unit, info); cacheErr != nil {
			s.logger.WarnContext(ctx, "royalty cache set failed",
				slog.String("unit", unit),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return info, nil
}

// Activity returns recent settlement history, optionally scoped to a policy.
func (s *MarketService) Activity(ctx context.Context, policyID string, opts domain.ListOpts) ([]domain.Activity, error) {
	var (
		rows []domain.Activity
		err  error
	)
	if policyID != "" {
		rows, err = s.activities.ListByPolicy(ctx, policyID, opts)
	} else {
		rows, err = s.activities.ListRecent(ctx, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("market_service: activity: %w", err)
	}
	return rows, nil
}
