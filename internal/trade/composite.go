package trade

import (
	"context"
	"fmt"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// CancelListingAndSell cancels the caller's own listing and settles a
// standing bid with the freed asset in one atomic plan. Either half failing
// fails the whole operation; nothing is staged.
func (m *Machine) CancelListingAndSell(ctx context.Context, listing, bid domain.OutRef, assetUnit string) (*domain.TxPlan, error) {
	plan, err := m.cancelListingPlan(ctx, listing, false)
	if err != nil {
		return nil, fmt.Errorf("trade: cancel half: %w", err)
	}
	// The cancelled listing's asset is available to the sell half inside the
	// same transaction; it will not be sitting in the wallet yet.
	freed := domain.Value{}
	for _, in := range plan.Inputs {
		for unit, qty := range in.Value {
			freed.Add(unit, qty)
		}
	}
	sell, err := m.sellPlan(ctx, bid, assetUnit, freed)
	if err != nil {
		return nil, fmt.Errorf("trade: sell half: %w", err)
	}
	plan.Merge(sell)
	return plan, nil
}

// CancelBidAndBuy cancels the caller's own bid and buys a standing listing
// with the freed funds in one atomic plan.
func (m *Machine) CancelBidAndBuy(ctx context.Context, bid, listing domain.OutRef) (*domain.TxPlan, error) {
	plan, err := m.CancelBid(ctx, bid)
	if err != nil {
		return nil, fmt.Errorf("trade: cancel half: %w", err)
	}
	buy, err := m.Buy(ctx, listing)
	if err != nil {
		return nil, fmt.Errorf("trade: buy half: %w", err)
	}
	plan.Merge(buy)
	return plan, nil
}
