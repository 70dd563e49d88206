package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/fees"
	"github.com/tealbay/nftmarketd/internal/match"
	"github.com/tealbay/nftmarketd/internal/plutus"
)

// Bid locks offerLovelace against an exact asset bundle. One asset-scoped
// locking token is minted into the bid position.
func (m *Machine) Bid(ctx context.Context, bundle domain.Value, offerLovelace int64) (*domain.TxPlan, error) {
	if offerLovelace <= 0 {
		return nil, fmt.Errorf("trade: non-positive bid amount %d", offerLovelace)
	}
	units := bundle.Units()
	var assetNameHex string
	for _, unit := range units {
		if unit == domain.LovelaceUnit {
			continue
		}
		_, assetNameHex = domain.SplitUnit(unit)
		break
	}
	if assetNameHex == "" {
		return nil, fmt.Errorf("trade: bid bundle holds no asset")
	}

	mint := m.policy.MintBid(assetNameHex)
	return m.placeBid(ctx, domain.BidOption{
		Kind:   domain.BidSpecificValue,
		Bundle: bundle.Clone(),
	}, offerLovelace, mint)
}

// BidOpen locks offerLovelace against any one asset of a policy, optionally
// constrained by type labels and trait filters. The shared open-bid locking
// token is minted into the position.
func (m *Machine) BidOpen(ctx context.Context, policyID string, types []string, traits []domain.TraitFilter, offerLovelace int64) (*domain.TxPlan, error) {
	if offerLovelace <= 0 {
		return nil, fmt.Errorf("trade: non-positive bid amount %d", offerLovelace)
	}
	return m.placeBid(ctx, domain.BidOption{
		Kind:     domain.BidOpenConstrained,
		PolicyID: policyID,
		Types:    types,
		Traits:   traits,
	}, offerLovelace, m.policy.MintOpenBid())
}

func (m *Machine) placeBid(ctx context.Context, option domain.BidOption, offerLovelace int64, mint domain.MintEntry) (*domain.TxPlan, error) {
	datum, err := plutus.EncodeTradeDatum(domain.TradeDatum{
		Kind: domain.DatumBid,
		Bid:  &domain.BidDatum{Owner: m.wallet.Address(), Option: option},
	})
	if err != nil {
		return nil, err
	}

	addr, err := m.tradeAddress(m.wallet.Address().Stake)
	if err != nil {
		return nil, err
	}

	value := domain.NewValue(offerLovelace)
	value.Add(mint.Unit(), 1)

	plan := &domain.TxPlan{
		Outputs: []domain.PlanOutput{{
			Address:    addr,
			Value:      value,
			DatumBytes: datum,
		}},
		Mints: []domain.MintEntry{mint},
	}
	if err := m.attachMintPolicy(ctx, plan); err != nil {
		return nil, err
	}

	m.logger.Debug("built bid plan",
		slog.Int64("lovelace", offerLovelace),
		slog.String("lock_token", mint.Unit()),
	)
	return plan, nil
}

// ChangeBid consumes a bid the caller owns and recreates it with a new
// locked amount, keeping the datum and locking token unchanged.
func (m *Machine) ChangeBid(ctx context.Context, ref domain.OutRef, offerLovelace int64) (*domain.TxPlan, error) {
	if offerLovelace <= 0 {
		return nil, fmt.Errorf("trade: non-positive bid amount %d", offerLovelace)
	}
	utxo, datum, err := m.fetchDatum(ctx, ref)
	if err != nil {
		return nil, err
	}
	if datum.Kind != domain.DatumBid {
		return nil, fmt.Errorf("trade: change bid at %s: %w", ref, domain.ErrWrongVariant)
	}
	if err := m.requireOwner(datum.Bid.Owner); err != nil {
		return nil, err
	}

	value := utxo.Value.Clone()
	value[domain.LovelaceUnit] = offerLovelace

	plan := &domain.TxPlan{
		Inputs: []domain.PlanInput{{
			OutRef: ref,
			Value:  utxo.Value,
			Action: domain.ActionCancel,
		}},
		Outputs: []domain.PlanOutput{{
			Address:    utxo.Address,
			Value:      value,
			DatumBytes: utxo.DatumBytes,
		}},
		RequiredSigners: []string{m.wallet.KeyHash()},
	}
	if err := m.attachValidator(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// CancelBid consumes a bid the caller owns, burns its locking token, and
// returns the locked funds to the caller.
func (m *Machine) CancelBid(ctx context.Context, ref domain.OutRef) (*domain.TxPlan, error) {
	utxo, datum, err := m.fetchDatum(ctx, ref)
	if err != nil {
		return nil, err
	}
	if datum.Kind != domain.DatumBid {
		return nil, fmt.Errorf("trade: cancel bid at %s: %w", ref, domain.ErrWrongVariant)
	}
	if err := m.requireOwner(datum.Bid.Owner); err != nil {
		return nil, err
	}

	burn, ok := m.policy.Burn(utxo.Value)
	if !ok {
		return nil, fmt.Errorf("trade: bid %s holds no locking token: %w", ref, domain.ErrNoMatchingUtxo)
	}

	refund := utxo.Value.Clone()
	refund.Add(burn.Unit(), -1)

	plan := &domain.TxPlan{
		Inputs: []domain.PlanInput{{
			OutRef: ref,
			Value:  utxo.Value,
			Action: domain.ActionCancel,
		}},
		Outputs: []domain.PlanOutput{{
			Address: m.wallet.Bech32(),
			Value:   refund,
		}},
		Mints:           []domain.MintEntry{burn},
		RequiredSigners: []string{m.wallet.KeyHash()},
	}
	if err := m.attachValidator(ctx, plan); err != nil {
		return nil, err
	}
	if err := m.attachMintPolicy(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Sell settles a standing bid with an asset the caller supplies. For open
// bids assetUnit names the concrete asset; constrained bids additionally
// require the asset's reference metadata as a read-only proof. The bid's
// locked lovelace is fee-split, the seller receives the remainder, the bid
// owner receives the requested assets, and the locking token is burned.
func (m *Machine) Sell(ctx context.Context, ref domain.OutRef, assetUnit string) (*domain.TxPlan, error) {
	return m.sellPlan(ctx, ref, assetUnit, nil)
}

// sellPlan builds the sell plan. freed carries asset units already supplied
// by another half of a composite plan (a cancelled listing); those units are
// exempt from the wallet-holding check.
func (m *Machine) sellPlan(ctx context.Context, ref domain.OutRef, assetUnit string, freed domain.Value) (*domain.TxPlan, error) {
	utxo, datum, err := m.fetchDatum(ctx, ref)
	if err != nil {
		return nil, err
	}
	if datum.Kind != domain.DatumBid {
		return nil, fmt.Errorf("trade: sell at %s: %w", ref, domain.ErrWrongVariant)
	}
	bid := datum.Bid

	result, refProof, err := m.resolveBid(ctx, bid.Option, assetUnit)
	if err != nil {
		return nil, err
	}

	// The caller must actually hold what the bid demands.
	for _, unit := range result.RequestedAssets.Units() {
		if unit == domain.LovelaceUnit || freed[unit] > 0 {
			continue
		}
		owned, err := m.ledger.UtxosAtAddressWithUnit(ctx, m.wallet.Bech32(), unit)
		if err != nil {
			return nil, fmt.Errorf("trade: sell %s: %w", unit, err)
		}
		if len(owned) == 0 {
			return nil, fmt.Errorf("trade: asset %s not in wallet: %w", unit, domain.ErrNoMatchingUtxo)
		}
	}

	burn, ok := m.policy.Burn(utxo.Value)
	if !ok {
		return nil, fmt.Errorf("trade: bid %s holds no locking token: %w", ref, domain.ErrNoMatchingUtxo)
	}

	plan := &domain.TxPlan{
		Inputs: []domain.PlanInput{{
			OutRef: ref,
			Value:  utxo.Value,
			Action: domain.ActionSell,
		}},
		Mints: []domain.MintEntry{burn},
	}
	if refProof != nil {
		plan.ReferenceInputs = append(plan.ReferenceInputs, *refProof)
	}

	schedule, royaltyRef, err := m.royaltySchedule(ctx)
	if err != nil {
		return nil, err
	}
	plan.ReferenceInputs = append(plan.ReferenceInputs, royaltyRef)

	gross := utxo.Value.Lovelace()
	payouts, remainder, err := fees.Split(gross, schedule)
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

	// Seller takes the remainder.
	sellerOut, err := paymentTo(m.wallet.Bech32(), domain.NewValue(remainder), ref)
	if err != nil {
		return nil, err
	}
	plan.Outputs = append(plan.Outputs, sellerOut)

	// Bid owner takes the requested assets.
	ownerAddr, err := m.encodeOwnerAddress(bid.Owner)
	if err != nil {
		return nil, err
	}
	ownerOut, err := paymentTo(ownerAddr, result.RequestedAssets, ref)
	if err != nil {
		return nil, err
	}
	plan.Outputs = append(plan.Outputs, ownerOut)

	m.protocolPayout(plan)

	if err := m.attachValidator(ctx, plan); err != nil {
		return nil, err
	}
	if err := m.attachMintPolicy(ctx, plan); err != nil {
		return nil, err
	}

	m.logger.Debug("built sell plan",
		slog.String("bid", ref.String()),
		slog.Int64("gross", gross),
		slog.Int64("seller_remainder", remainder),
	)
	return plan, nil
}

// resolveBid runs the matcher, performing the reference-metadata lookup when
// the bid carries constraints. The returned out ref, when non-nil, is the
// read-only proof input.
func (m *Machine) resolveBid(ctx context.Context, option domain.BidOption, assetUnit string) (match.Result, *domain.OutRef, error) {
	var assetNameHex string
	if option.Kind == domain.BidOpenConstrained {
		policy, name := domain.SplitUnit(assetUnit)
		if policy != option.PolicyID {
			return match.Result{}, nil, fmt.Errorf("trade: asset %s is not under bid policy %s: %w",
				assetUnit, option.PolicyID, domain.ErrConstraintUnsatisfied)
		}
		assetNameHex = name
	}

	if !match.NeedsProof(option) {
		result, err := match.Resolve(option, assetNameHex, nil)
		return result, nil, err
	}

	refUnit := match.ReferenceUnit(option.PolicyID, assetNameHex)
	refUtxo, err := m.ledger.UtxoByUnit(ctx, refUnit)
	if err != nil {
		if errors.Is(err, domain.ErrNoMatchingUtxo) {
			return match.Result{}, nil, fmt.Errorf("trade: reference token %s: %w",
				refUnit, domain.ErrReferenceNotFound)
		}
		return match.Result{}, nil, fmt.Errorf("trade: reference lookup %s: %w", refUnit, err)
	}
	meta, err := plutus.DecodeRefMetadata(refUtxo.DatumBytes)
	if err != nil {
		return match.Result{}, nil, fmt.Errorf("trade: decode reference metadata: %w", err)
	}

	result, err := match.Resolve(option, assetNameHex, &meta)
	if err != nil {
		return match.Result{}, nil, err
	}
	return result, &refUtxo.OutRef, nil
}

// SellBatch composes independent sell plans into one atomic plan. Each entry
// pairs a bid position with the asset offered against it; the first failing
// sub-plan aborts the whole batch.
func (m *Machine) SellBatch(ctx context.Context, orders []SellOrder) (*domain.TxPlan, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("trade: empty sell batch")
	}
	plan := &domain.TxPlan{}
	for _, o := range orders {
		sub, err := m.Sell(ctx, o.Bid, o.AssetUnit)
		if err != nil {
			return nil, fmt.Errorf("trade: batch sell %s: %w", o.Bid, err)
		}
		plan.Merge(sub)
	}
	return plan, nil
}

// SellOrder names one bid settlement inside a batch.
type SellOrder struct {
	Bid       domain.OutRef
	AssetUnit string
}
