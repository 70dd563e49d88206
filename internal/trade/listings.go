package trade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/fees"
	"github.com/tealbay/nftmarketd/internal/plutus"
)

// List creates a listing for one unit of the given asset at the requested
// price. The asset must currently sit in the caller's wallet; privateBuyer
// optionally restricts who may settle.
func (m *Machine) List(ctx context.Context, unit string, requestedLovelace int64, privateBuyer *domain.Address) (*domain.TxPlan, error) {
	if requestedLovelace < 0 {
		return nil, fmt.Errorf("trade: negative listing price %d", requestedLovelace)
	}

	owned, err := m.ledger.UtxosAtAddressWithUnit(ctx, m.wallet.Bech32(), unit)
	if err != nil {
		return nil, fmt.Errorf("trade: list %s: %w", unit, err)
	}
	if len(owned) == 0 {
		return nil, fmt.Errorf("trade: asset %s not in wallet: %w", unit, domain.ErrNoMatchingUtxo)
	}

	datum, err := plutus.EncodeTradeDatum(domain.TradeDatum{
		Kind: domain.DatumListing,
		Listing: &domain.ListingDatum{
			Owner:             m.wallet.Address(),
			RequestedLovelace: requestedLovelace,
			PrivateBuyer:      privateBuyer,
		},
	})
	if err != nil {
		return nil, err
	}

	addr, err := m.tradeAddress(m.wallet.Address().Stake)
	if err != nil {
		return nil, err
	}

	value := domain.Value{}
	value.Add(unit, 1)

	m.logger.Debug("built listing plan",
		slog.String("unit", unit),
		slog.Int64("price", requestedLovelace),
	)

	return &domain.TxPlan{
		Outputs: []domain.PlanOutput{{
			Address:    addr,
			Value:      value,
			DatumBytes: datum,
		}},
	}, nil
}

// ChangeListing consumes a listing the caller owns and recreates it with a
// new price and buyer restriction, keeping the asset content unchanged.
func (m *Machine) ChangeListing(ctx context.Context, ref domain.OutRef, requestedLovelace int64, privateBuyer *domain.Address) (*domain.TxPlan, error) {
	utxo, datum, err := m.fetchDatum(ctx, ref)
	if err != nil {
		return nil, err
	}
	if datum.Kind != domain.DatumListing {
		return nil, fmt.Errorf("trade: change listing at %s: %w", ref, domain.ErrWrongVariant)
	}
	if err := m.requireOwner(datum.Listing.Owner); err != nil {
		return nil, err
	}

	newDatum, err := plutus.EncodeTradeDatum(domain.TradeDatum{
		Kind: domain.DatumListing,
		Listing: &domain.ListingDatum{
			Owner:             datum.Listing.Owner,
			RequestedLovelace: requestedLovelace,
			PrivateBuyer:      privateBuyer,
		},
	})
	if err != nil {
		return nil, err
	}

	plan := &domain.TxPlan{
		Inputs: []domain.PlanInput{{
			OutRef: ref,
			Value:  utxo.Value,
			Action: domain.ActionCancel,
		}},
		Outputs: []domain.PlanOutput{{
			Address:    utxo.Address,
			Value:      utxo.Value.Clone(),
			DatumBytes: newDatum,
		}},
		RequiredSigners: []string{m.wallet.KeyHash()},
	}
	if err := m.attachValidator(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// CancelListing consumes a listing the caller owns and returns its asset to
// the caller's wallet.
func (m *Machine) CancelListing(ctx context.Context, ref domain.OutRef) (*domain.TxPlan, error) {
	return m.cancelListingPlan(ctx, ref, true)
}

// cancelListingPlan builds the cancel plan. refund controls whether the
// freed asset is paid back to the wallet; a composite plan that immediately
// sells the asset suppresses the refund output.
func (m *Machine) cancelListingPlan(ctx context.Context, ref domain.OutRef, refund bool) (*domain.TxPlan, error) {
	utxo, datum, err := m.fetchDatum(ctx, ref)
	if err != nil {
		return nil, err
	}
	if datum.Kind != domain.DatumListing {
		return nil, fmt.Errorf("trade: cancel listing at %s: %w", ref, domain.ErrWrongVariant)
	}
	if err := m.requireOwner(datum.Listing.Owner); err != nil {
		return nil, err
	}

	plan := &domain.TxPlan{
		Inputs: []domain.PlanInput{{
			OutRef: ref,
			Value:  utxo.Value,
			Action: domain.ActionCancel,
		}},
		RequiredSigners: []string{m.wallet.KeyHash()},
	}
	if refund {
		plan.Outputs = append(plan.Outputs, domain.PlanOutput{
			Address: m.wallet.Bech32(),
			Value:   utxo.Value.Clone(),
		})
	}
	if err := m.attachValidator(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Buy settles a listing: it consumes the position with the Buy action,
// splits the requested price across the royalty schedule, pays the owner the
// remainder with a provenance datum, and sends the asset to the caller.
// Anyone may buy unless the listing is private, in which case the restricted
// buyer must be the caller and co-sign.
func (m *Machine) Buy(ctx context.Context, ref domain.OutRef) (*domain.TxPlan, error) {
	utxo, datum, err := m.fetchDatum(ctx, ref)
	if err != nil {
		return nil, err
	}
	if datum.Kind != domain.DatumListing {
		return nil, fmt.Errorf("trade: buy at %s: %w", ref, domain.ErrWrongVariant)
	}
	listing := datum.Listing

	plan := &domain.TxPlan{
		Inputs: []domain.PlanInput{{
			OutRef: ref,
			Value:  utxo.Value,
			Action: domain.ActionBuy,
		}},
	}

	if listing.PrivateBuyer != nil {
		if !m.wallet.Address().SameOwner(*listing.PrivateBuyer) {
			return nil, fmt.Errorf("trade: listing %s is private: %w", ref, domain.ErrUnauthorized)
		}
		plan.RequiredSigners = append(plan.RequiredSigners, listing.PrivateBuyer.Payment.HexHash())
	}

	schedule, royaltyRef, err := m.royaltySchedule(ctx)
	if err != nil {
		return nil, err
	}
	plan.ReferenceInputs = append(plan.ReferenceInputs, royaltyRef)

	payouts, remainder, err := fees.Split(listing.RequestedLovelace, schedule)
	if err != nil {
		return nil, err
	}
	for _, p := range payouts {
		addr, err := m.encodeOwnerAddress(p.Address)
		if err != nil {
			return nil, err
		}
		out, err := paymentTo(addr, domain.NewValue(p.Lovelace), ref)
		if err != nil {
			return nil, err
		}
		plan.Outputs = append(plan.Outputs, out)
	}

	ownerAddr, err := m.encodeOwnerAddress(listing.Owner)
	if err != nil {
		return nil, err
	}
	ownerOut, err := paymentTo(ownerAddr, domain.NewValue(remainder), ref)
	if err != nil {
		return nil, err
	}
	plan.Outputs = append(plan.Outputs, ownerOut)

	// The listed asset moves to the buyer.
	plan.Outputs = append(plan.Outputs, domain.PlanOutput{
		Address: m.wallet.Bech32(),
		Value:   utxo.Value.Clone(),
	})

	m.protocolPayout(plan)

	if err := m.attachValidator(ctx, plan); err != nil {
		return nil, err
	}

	m.logger.Debug("built buy plan",
		slog.String("listing", ref.String()),
		slog.Int64("gross", listing.RequestedLovelace),
		slog.Int64("owner_remainder", remainder),
	)
	return plan, nil
}

// BuyBatch composes independent buy plans into one atomic plan. The first
// failing sub-plan aborts the whole batch.
func (m *Machine) BuyBatch(ctx context.Context, refs []domain.OutRef) (*domain.TxPlan, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("trade: empty buy batch")
	}
	plan := &domain.TxPlan{}
	for _, ref := range refs {
		sub, err := m.Buy(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("trade: batch buy %s: %w", ref, err)
		}
		plan.Merge(sub)
	}
	return plan, nil
}
