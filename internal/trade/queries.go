package trade

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/plutus"
)

// GetListings returns the decoded listings for one policy, sorted by price
// descending. Positions with undecodable datums are skipped, not fatal: the
// trade address is an open surface anyone can send junk to.
func (m *Machine) GetListings(ctx context.Context, policyID string) ([]domain.ListingView, error) {
	utxos, err := m.scriptUtxos(ctx)
	if err != nil {
		return nil, err
	}

	var listings []domain.ListingView
	for _, u := range utxos {
		datum, err := plutus.DecodeTradeDatum(u.DatumBytes)
		if err != nil || datum.Kind != domain.DatumListing {
			continue
		}
		units := u.Value.PolicyAssets(policyID)
		if len(units) == 0 {
			continue
		}
		view := domain.ListingView{
			OutRef:            u.OutRef,
			Unit:              units[0],
			OwnerKeyHash:      datum.Listing.Owner.Payment.HexHash(),
			RequestedLovelace: datum.Listing.RequestedLovelace,
		}
		if datum.Listing.PrivateBuyer != nil {
			h := datum.Listing.PrivateBuyer.Payment.HexHash()
			view.PrivateBuyer = &h
		}
		listings = append(listings, view)
	}

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].RequestedLovelace > listings[j].RequestedLovelace
	})
	return listings, nil
}

// GetBids returns the decoded bids relevant to one policy, sorted by locked
// lovelace descending. Specific bids qualify when their bundle holds an
// asset of the policy; open bids when they target it.
func (m *Machine) GetBids(ctx context.Context, policyID string) ([]domain.BidView, error) {
	utxos, err := m.scriptUtxos(ctx)
	if err != nil {
		return nil, err
	}

	var bids []domain.BidView
	for _, u := range utxos {
		datum, err := plutus.DecodeTradeDatum(u.DatumBytes)
		if err != nil || datum.Kind != domain.DatumBid {
			continue
		}
		bid := datum.Bid

		view := domain.BidView{
			OutRef:       u.OutRef,
			OwnerKeyHash: bid.Owner.Payment.HexHash(),
			Lovelace:     u.Value.Lovelace(),
		}
		switch bid.Option.Kind {
		case domain.BidSpecificValue:
			units := bid.Option.Bundle.PolicyAssets(policyID)
			if len(units) == 0 {
				continue
			}
			view.Unit = units[0]
			view.PolicyID = policyID
		case domain.BidOpenConstrained:
			if bid.Option.PolicyID != policyID {
				continue
			}
			view.Open = true
			view.PolicyID = bid.Option.PolicyID
			view.Types = bid.Option.Types
			view.Traits = bid.Option.Traits
		default:
			continue
		}
		bids = append(bids, view)
	}

	sort.Slice(bids, func(i, j int) bool {
		return bids[i].Lovelace > bids[j].Lovelace
	})
	return bids, nil
}

// GetListingOrBid resolves one position and returns its decoded datum, or
// nil when the position does not exist.
func (m *Machine) GetListingOrBid(ctx context.Context, ref domain.OutRef) (*domain.TradeDatum, error) {
	_, datum, err := m.fetchDatum(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNoMatchingUtxo) {
			return nil, nil
		}
		return nil, err
	}
	return &datum, nil
}

func (m *Machine) scriptUtxos(ctx context.Context) ([]domain.UTXO, error) {
	addr, err := m.baseTradeAddress()
	if err != nil {
		return nil, err
	}
	utxos, err := m.ledger.UtxosAtAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("trade: script utxos: %w", err)
	}
	return utxos, nil
}
